// Package k8s implements cluster.Store on Kubernetes primitives:
// worker membership is read from Pods matching a label selector, and
// leader election rides on a coordination/v1 Lease.
//
// Example:
//
//	client := kubernetes.NewForConfigOrDie(rest.InClusterConfig())
//	provider := k8s.New(client, "my-namespace")
//	// Use provider as a cluster.Store
package k8s
