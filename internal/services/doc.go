// Package services defines the shared error taxonomy and context annotations
// used by stage handlers and the transport layers. Stage failures are tagged
// with sentinel markers so the workflow manager and API can classify them
// without string matching.
package services
