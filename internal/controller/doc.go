// Package controller wires the App reconcile engine into controller-runtime.
//
// AppReconciler watches App resources and the four children it owns
// (Deployment, HorizontalPodAutoscaler, Service, Ingress). For each request it
// reads the App, derives the event kind and hands a reconciler.Request to the
// engine:
//
//	┌─────────────┐   watch    ┌───────────────┐  Request   ┌──────────────────┐
//	│ App         │───────────>│ AppReconciler │───────────>│ reconciler.Engine│
//	│ + children  │            └───────────────┘            └────────┬─────────┘
//	└─────────────┘                                                  │ store.Store
//	                                                                 ▼
//	                                                        ┌──────────────────┐
//	                                                        │ Kubernetes API   │
//	                                                        └──────────────────┘
//
// Retriable outcomes (conflicts, timeouts, API errors, a failed status write)
// are returned as errors so the workqueue requeues the App with exponential
// backoff. An invalid spec is not requeued; the next spec change triggers a
// new pass.
//
// # Configuration
//
// Run takes a config.Config populated from CLI flags or WEBAPP_* environment
// variables.
//
// # Leader Election
//
// When running multiple replicas for high availability, enable leader election
// via --leader-elect flag to ensure only one controller actively reconciles
// resources at a time.
package controller
