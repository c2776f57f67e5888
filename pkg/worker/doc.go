/*
Package worker implements the execution loop that the jobflow binary's
`worker` subcommand runs once per job-store ID.

Run loads one job record, executes its payload, opportunistically chains
into qualifying successors without returning to the leader, checkpoints
its progress, and always leaves the store in a recoverable state --
including when the payload itself panics or returns an error.

# Payload reconstruction

A job's command is either an opaque shell command or a `"scriptTree "`
prefixed structured payload reference. Structured payloads are
reconstructed through an explicit tagged-variant registry
(RegisterPayloadKind/ReconstructPayload) rather than by importing
arbitrary classes named in the command string, which is the one part of
the original design this package deliberately does not carry forward
(see scripttree.go).

# Output capture

capture.go redirects file descriptors 1 and 2 for the lifetime of one
worker invocation so that a shell-command payload's own subprocesses
inherit the redirection, since capture must happen at the OS descriptor
level, not just through Go's os.Stdout.
*/
package worker
