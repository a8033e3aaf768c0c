package action

// MessageID names a localizable string. The presentation layer owns the text;
// results only carry ids and interpolation args.
type MessageID string

const (
	MsgNone MessageID = ""

	// Titles.
	MsgCantBuildTrack       MessageID = "cant_build_track"
	MsgCantRemoveTrack      MessageID = "cant_remove_track"
	MsgCantCreateRide       MessageID = "cant_create_ride"
	MsgCantBuildEntrance    MessageID = "cant_build_entrance"
	MsgCantBuildExit        MessageID = "cant_build_exit"
	MsgCantChangeColours    MessageID = "cant_change_colour_scheme"
	MsgCantChangeGuestFlags MessageID = "cant_change_guest_flags"
	MsgCantSetCash          MessageID = "cant_set_cash"
	MsgActionRejected       MessageID = "action_rejected"

	// Authorization.
	MsgNotPermitted MessageID = "not_permitted"
	MsgRideNotOwned MessageID = "ride_not_owned"
	MsgEditorOnly   MessageID = "editor_only"

	// Game mode and resources.
	MsgNotAllowedWhilePaused MessageID = "not_allowed_while_paused"
	MsgInsufficientFunds     MessageID = "insufficient_funds"
	MsgRateLimited           MessageID = "rate_limited"
	MsgQueueFull             MessageID = "action_queue_full"

	// Placement legality.
	MsgTileElementLimit  MessageID = "tile_element_limit_reached"
	MsgMapElementLimit   MessageID = "map_element_limit_reached"
	MsgOffEdgeOfMap      MessageID = "off_edge_of_map"
	MsgLandNotOwned      MessageID = "land_not_owned"
	MsgObstruction       MessageID = "obstruction"
	MsgPartlyUnderground MessageID = "partly_underground"
	MsgUnderwater        MessageID = "cannot_build_underwater"
	MsgTooHigh           MessageID = "too_high"
	MsgTooLow            MessageID = "too_low"
	MsgIndestructible    MessageID = "indestructible_track"
	MsgTrackNotFound     MessageID = "track_not_found"
	MsgInvalidTrackType  MessageID = "invalid_track_type"
	MsgInvalidDirection  MessageID = "invalid_direction"
	MsgNotTileAligned    MessageID = "not_tile_aligned"
	MsgInvalidRide       MessageID = "invalid_ride"
	MsgRideMustBeClosed  MessageID = "ride_must_be_closed"
	MsgInvalidStation    MessageID = "invalid_station"
	MsgRideLimitReached  MessageID = "ride_limit_reached"
	MsgInvalidRideType   MessageID = "invalid_ride_type"
	MsgInvalidName       MessageID = "invalid_name"
	MsgInvalidColour     MessageID = "invalid_colour_scheme"
	MsgGuestNotFound     MessageID = "guest_not_found"
	MsgInvalidAmount     MessageID = "invalid_amount"

	// Protocol.
	MsgMalformedAction MessageID = "malformed_action"
	MsgUnknownAction   MessageID = "unknown_action"
	MsgOutOfSequence   MessageID = "out_of_sequence"
	MsgDuplicate       MessageID = "duplicate_request"
	MsgReplayOnly      MessageID = "replay_only"
	MsgUnknownPeer     MessageID = "unknown_peer"
	MsgConnectionLost  MessageID = "connection_lost"

	// Invariants.
	MsgInternalError     MessageID = "internal_error"
	MsgWorldInconsistent MessageID = "world_inconsistent"
)

var knownMessages = map[MessageID]struct{}{
	MsgNone:                  {},
	MsgCantBuildTrack:        {},
	MsgCantRemoveTrack:       {},
	MsgCantCreateRide:        {},
	MsgCantBuildEntrance:     {},
	MsgCantBuildExit:         {},
	MsgCantChangeColours:     {},
	MsgCantChangeGuestFlags:  {},
	MsgCantSetCash:           {},
	MsgActionRejected:        {},
	MsgNotPermitted:          {},
	MsgRideNotOwned:          {},
	MsgEditorOnly:            {},
	MsgNotAllowedWhilePaused: {},
	MsgInsufficientFunds:     {},
	MsgRateLimited:           {},
	MsgQueueFull:             {},
	MsgTileElementLimit:      {},
	MsgMapElementLimit:       {},
	MsgOffEdgeOfMap:          {},
	MsgLandNotOwned:          {},
	MsgObstruction:           {},
	MsgPartlyUnderground:     {},
	MsgUnderwater:            {},
	MsgTooHigh:               {},
	MsgTooLow:                {},
	MsgIndestructible:        {},
	MsgTrackNotFound:         {},
	MsgInvalidTrackType:      {},
	MsgInvalidDirection:      {},
	MsgNotTileAligned:        {},
	MsgInvalidRide:           {},
	MsgRideMustBeClosed:      {},
	MsgInvalidStation:        {},
	MsgRideLimitReached:      {},
	MsgInvalidRideType:       {},
	MsgInvalidName:           {},
	MsgInvalidColour:         {},
	MsgGuestNotFound:         {},
	MsgInvalidAmount:         {},
	MsgMalformedAction:       {},
	MsgUnknownAction:         {},
	MsgOutOfSequence:         {},
	MsgDuplicate:             {},
	MsgReplayOnly:            {},
	MsgUnknownPeer:           {},
	MsgConnectionLost:        {},
	MsgInternalError:         {},
	MsgWorldInconsistent:     {},
}

func IsKnownMessage(id MessageID) bool {
	_, ok := knownMessages[id]
	return ok
}

// Normalize maps unknown ids to MsgInternalError.
func Normalize(id MessageID) MessageID {
	if IsKnownMessage(id) {
		return id
	}
	return MsgInternalError
}
