// Package task wraps a backend's task operations with handle validation.
// Tasks created through a Manager are addressed by osal.Handle instead of
// raw references, so a stale or foreign handle is caught by the registry
// instead of acting on the wrong task.
package task
