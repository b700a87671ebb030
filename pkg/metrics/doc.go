// Package metrics declares the Prometheus collectors readtrack exports.
//
// Collectors are registered on the default registry at package init through
// promauto, so importing the package is enough to make them appear on the
// handler returned by Handler. Label values are kept to small closed sets
// (transition names, cache results, sweep policies, job names).
package metrics
