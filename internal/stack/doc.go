// Package stack declares the resources of a web deployment and wires them
// together: network boundary, security perimeters, access identities, the
// database credential secret, the database, the compute host and the edge
// load balancer.
//
// Every component takes its dependencies as arguments and returns the
// resources it declared. Nothing here talks to a cloud API; materialization
// is the engine's job.
package stack
