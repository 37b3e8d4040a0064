// Package deadlock derives the actor waits-for graph from a resource
// snapshot and reports the cycles in it.
//
// An edge A -> B means A is parked on a resource B holds in a way that
// keeps A waiting. Strongly connected components group the cycles so each
// independent deadlock is reported once; within a component a depth-first
// search from the smallest actor extracts one concrete cycle. The same
// snapshot always yields the same reports.
package deadlock
