// Package triage is the business boundary of lookout. Engine is the pure
// decision core: it redacts a ticket, consults the knowledge base and incident
// history, classifies severity, applies the escalation policy and attaches a
// narrative. Service adds identity, persistence and notification on top.
package triage
