/*
Package metrics provides Prometheus instrumentation for jobflow.

Unlike most of jobflow's consumers, which are short-lived worker processes
launched once per job, the counters and histograms here are meant to be
scraped from the longer-lived `jobflow store` administrative commands and
from embedders that keep a Store open across many worker invocations (for
example a leader process, out of scope for this repository but a client of
it). A worker invocation that completes in under a second between process
start and promhttp scrape intervals will rarely be scraped live; what
matters is that every backend and the recovery sweep record through these
same metrics regardless of which one is running, so a scrape taken at any
point reflects cumulative counts since the store was opened.

Metrics intentionally stop at observability: nothing here feeds a scheduling
decision, consistent with the Non-goal that the core does not schedule jobs
by cost or fairness.
*/
package metrics
