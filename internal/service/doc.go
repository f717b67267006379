// Package service contains the application use cases of the pipeline.
//
// AdmissionService validates a submission, records the task together with its
// queue message in one transaction and publishes the message. TaskService
// answers status queries and applies processing results.
//
// Services receive their dependencies through constructor injection and only
// depend on the store interfaces, never on a concrete database or broker.
package service
