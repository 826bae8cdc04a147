// Package pkg provides the libraries behind gemlock, a Ruby gem dependency
// resolver that keeps Gemfile.lock in sync with a Gemfile.
//
// # Overview
//
// A run reads a manifest, the previous lock and the settings, resolves the
// manifest's gems against their sources and writes the new lock. The pkg
// directory is organized into four areas:
//
//  1. Domain model - [gemver] (versions and requirements), [platform],
//     [manifest] (Gemfile, gems.rb and Gemfile.toml) and [lockfile]
//  2. Resolution - [source] (remote, path and git sources), [index]
//     (candidate lookup across sources) and [resolver] (backtracking solver)
//  3. Orchestration - [definition] (update policy, lock reconciliation,
//     runtime validation)
//  4. Infrastructure - [cache], [config], [httputil], [integrations]
//     (compact index clients), [observability] and [errors]
//
// # Architecture
//
// The data flow of one resolution:
//
//	Gemfile + Gemfile.lock + settings
//	         ↓
//	    [definition] package (what may move, which sources to open)
//	         ↓
//	    [index] package (candidates per gem, platform filtered)
//	         ↓
//	    [resolver] package (one consistent version per gem)
//	         ↓
//	    [lockfile] package (reconcile and write)
//
// # Quick Start
//
//	model, _ := manifest.Load("Gemfile")
//	locked, _ := lockfile.ReadFile("Gemfile.lock") // nil when missing
//	settings, _ := config.Load(".")
//
//	d, _ := definition.New(model, locked, settings)
//	if err := d.ResolveRemotely(ctx); err != nil {
//	    return err
//	}
//	_, err := d.Lock("Gemfile.lock", lockfile.WriteOptions{PreserveUnknown: true})
//
// # Error Handling
//
// Errors carry a machine-readable code from [errors]; check them with
// errors.Is(err, errors.ErrCodeSolveFailure) and friends. Solver conflicts,
// missing gems and source failures have richer types in [resolver] and
// [index].
package pkg
