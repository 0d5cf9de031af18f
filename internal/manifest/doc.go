// Package manifest builds the desired child objects of an App.
//
// Every App owns exactly four children, one per Kind:
//
//   - Deployment (<name>-deploy) running the application container
//   - HorizontalPodAutoscaler (<name>-hpa) scaling the Deployment on CPU
//   - Service (<name>-svc) exposing the container port inside the cluster
//   - Ingress (<name>-ing) routing the external host to the Service
//
// Builders are pure functions of a validated AppSpec. They never read the
// cluster, and two calls with the same spec produce identical objects.
// Child names come from ChildName only, so builders that reference a sibling
// (the autoscaler target, the ingress backend) always agree with the name the
// sibling is created under.
package manifest
