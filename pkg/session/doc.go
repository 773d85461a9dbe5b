/*
Package session keeps the live survey machines of a process.

A Manager hands out uuid session IDs, looks machines up for each incoming intent,
serializes compound operations on one session, and tears down sessions that were
deleted or sat idle too long.
*/
package session
