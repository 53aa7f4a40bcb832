// Package app wires configuration, storage, cache and the analytics service
// into the components shared by the API server and the snapshotter binary.
package app
