// Package dependency is Master-side only: Brokers never run Analyze. It
// mirrors the reverse-dependency bookkeeping pattern of a plain
// adjacency-map graph rather than an object-pointer graph, specifically so
// descriptors stay acyclic and serializable once IsRequiredFrom is
// populated (spec §9).
package dependency
