// SPDX-License-Identifier: MPL-2.0

// Package container runs live-execution commands inside already running containers.
//
// The Engine interface covers the few operations a sandbox needs: Name, Available,
// Version and Exec. DockerEngine and PodmanEngine both embed BaseCLIEngine, which
// builds the CLI arguments and runs the engine binary through an injectable
// ExecCommandFunc so tests never need a real engine.
//
// Engine selection uses NewEngine(EngineType) with automatic fallback to the other
// engine, or AutoDetectEngine() when no preference is configured.
//
// Sandbox adapts an Engine to the command engine: every call becomes
// `<engine> exec <target> sh -c <body>`, with transient engine failures retried
// using RetryWithBackoff.
package container
