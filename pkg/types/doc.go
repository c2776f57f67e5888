/*
Package types defines jobflow's job record and successor-stack data model.

A JobRecord is a node of the in-flight DAG. Its Stack is an ordered list of
SuccessorGroups; the last group is the next to run. A singleton group is a
chain link a worker can fold into its own invocation without returning to
the leader; a group of two or more is a parallel fan-out that forces the
worker to yield.

	Stack (top → bottom, top = next)
	┌─────────────────────────────┐
	│ [ S4 ]                      │  ← singleton: chainable
	├─────────────────────────────┤
	│ [ S2, S3 ]                  │  ← fan-out: forces yield to leader
	├─────────────────────────────┤
	│ [ S1 ]                      │  ← runs only after S2 and S3 both finish
	└─────────────────────────────┘

PredecessorsFinished and PredecessorNumber together implement the join: a
record becomes ready exactly when every predecessor it is waiting on has
signaled completion. JobsToDelete is not part of the DAG shape at all; it is
a transient marker used only by the two-phase spawn protocol (see
pkg/jobstore's recovery sweep) to make create-then-link crash-safe without a
multi-object transaction.
*/
package types
