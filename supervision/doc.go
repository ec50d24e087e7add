// Package supervision contains faults hierarchically in an Erlang-style
// supervision tree: one-for-one, all-for-one and rest-for-one restart
// strategies under a sliding-window restart budget, checkpointing of partial
// results, orphan detection, and escalation that carries a HierarchicalError
// up the tree until it is handled or becomes fatal at the root.
package supervision
