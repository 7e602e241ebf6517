// Package autolock escalates repeated rate-limit violations into account locks.
//
// A Tracker keeps one counter per identifier in the shared cache. Every
// violation either extends the counter's window or, once the threshold is
// reached, locks the owning account through a Locker and resets the counter.
// Cache failures never propagate: the tracker reports that no lock happened.
package autolock
