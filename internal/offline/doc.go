// Package offline implements the handheld side of a picking session: a
// durable FIFO of actions awaiting delivery, a dead-letter sink for actions
// the server rejects, a badger-backed cache of the last session view, and the
// single-consumer Agent that drains the queue.
//
// The Agent only ever submits the head entry. A transient failure schedules
// the head for retry with exponential backoff and ends the pass, so later
// actions never overtake it. An invalid_session response wipes the queue and
// cache; other 4xx responses move the head to the dead-letter table.
package offline
