// Package models defines the client-side state of a drop session: the
// session itself, its participants, transferred files, notes and toasts.
//
// File and note rows carry a two-part key. Before the server acknowledges a
// row only the client id is known (pending); afterwards the server id is set
// as well (confirmed). MergeFile and MergeNote reconcile server reports onto
// existing rows using those keys, so an echo arriving before or after the
// local acknowledgment converges on a single row.
package models
