// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package broadcast fans tally changes out to live listeners of a poll.

	broker := broadcast.NewBroker(16)

	sub := broker.Subscribe(ctx, pollID)
	defer sub.Close()
	for ev := range sub.Events() {
		// ev.OptionID now has ev.Votes votes
	}

	broker.Publish(pollID, optionID, votes)

Delivery is fire-and-forget with no replay. A slow subscriber never
stalls the publisher or other subscribers: while it lags, its pending
events are coalesced so that it only sees the latest count per option.
Cancelling the subscribe context or calling Close frees the slot.
*/
package broadcast
