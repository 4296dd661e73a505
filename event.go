/************************************************************************************
 *
 * gwc (Gateway Wire Client), a lightweight Go library for the Discord Gateway
 * protocol
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2025 Marouane Souiri
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package gwc

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// EventType names every dispatch event this client recognizes (the
// wire "t" field) plus a handful of locally-synthesized types for
// conditions the gateway protocol itself doesn't dispatch as events
// (a WebSocket close, a RECONNECT opcode).
type EventType string

const (
	EventHello                                EventType = "HELLO"
	EventReady                                EventType = "READY"
	EventResumed                               EventType = "RESUMED"
	EventReconnect                            EventType = "RECONNECT"
	EventInvalidSession                       EventType = "INVALID_SESSION"
	EventApplicationCommandPermissionsUpdate  EventType = "APPLICATION_COMMAND_PERMISSIONS_UPDATE"
	EventChannelCreate                        EventType = "CHANNEL_CREATE"
	EventChannelUpdate                        EventType = "CHANNEL_UPDATE"
	EventChannelDelete                        EventType = "CHANNEL_DELETE"
	EventChannelPinsUpdate                    EventType = "CHANNEL_PINS_UPDATE"
	EventThreadCreate                         EventType = "THREAD_CREATE"
	EventThreadUpdate                         EventType = "THREAD_UPDATE"
	EventThreadDelete                         EventType = "THREAD_DELETE"
	EventThreadListSync                       EventType = "THREAD_LIST_SYNC"
	EventThreadMemberUpdate                   EventType = "THREAD_MEMBER_UPDATE"
	EventThreadMembersUpdate                  EventType = "THREAD_MEMBERS_UPDATE"
	EventGuildCreate                          EventType = "GUILD_CREATE"
	EventGuildUpdate                          EventType = "GUILD_UPDATE"
	EventGuildDelete                          EventType = "GUILD_DELETE"
	EventGuildBanAdd                          EventType = "GUILD_BAN_ADD"
	EventGuildBanRemove                       EventType = "GUILD_BAN_REMOVE"
	EventGuildEmojisUpdate                    EventType = "GUILD_EMOJIS_UPDATE"
	EventGuildStickersUpdate                  EventType = "GUILD_STICKERS_UPDATE"
	EventGuildIntegrationsUpdate               EventType = "GUILD_INTEGRATIONS_UPDATE"
	EventGuildMemberAdd                        EventType = "GUILD_MEMBER_ADD"
	EventGuildMemberRemove                     EventType = "GUILD_MEMBER_REMOVE"
	EventGuildMemberUpdate                     EventType = "GUILD_MEMBER_UPDATE"
	EventGuildMembersChunk                     EventType = "GUILD_MEMBERS_CHUNK"
	EventGuildRoleCreate                       EventType = "GUILD_ROLE_CREATE"
	EventGuildRoleUpdate                       EventType = "GUILD_ROLE_UPDATE"
	EventGuildRoleDelete                       EventType = "GUILD_ROLE_DELETE"
	EventGuildScheduledEventCreate             EventType = "GUILD_SCHEDULED_EVENT_CREATE"
	EventGuildScheduledEventUpdate             EventType = "GUILD_SCHEDULED_EVENT_UPDATE"
	EventGuildScheduledEventDelete             EventType = "GUILD_SCHEDULED_EVENT_DELETE"
	EventGuildScheduledEventUserAdd            EventType = "GUILD_SCHEDULED_EVENT_USER_ADD"
	EventGuildScheduledEventUserRemove         EventType = "GUILD_SCHEDULED_EVENT_USER_REMOVE"
	EventIntegrationCreate                     EventType = "INTEGRATION_CREATE"
	EventIntegrationUpdate                     EventType = "INTEGRATION_UPDATE"
	EventIntegrationDelete                     EventType = "INTEGRATION_DELETE"
	EventInteractionCreate                     EventType = "INTERACTION_CREATE"
	EventInviteCreate                          EventType = "INVITE_CREATE"
	EventInviteDelete                          EventType = "INVITE_DELETE"
	EventMessageCreate                         EventType = "MESSAGE_CREATE"
	EventMessageUpdate                         EventType = "MESSAGE_UPDATE"
	EventMessageDelete                         EventType = "MESSAGE_DELETE"
	EventMessageDeleteBulk                     EventType = "MESSAGE_DELETE_BULK"
	EventMessageReactionAdd                    EventType = "MESSAGE_REACTION_ADD"
	EventMessageReactionRemove                 EventType = "MESSAGE_REACTION_REMOVE"
	EventMessageReactionRemoveAll               EventType = "MESSAGE_REACTION_REMOVE_ALL"
	EventMessageReactionRemoveEmoji            EventType = "MESSAGE_REACTION_REMOVE_EMOJI"
	EventPresenceUpdate                        EventType = "PRESENCE_UPDATE"
	EventStageInstanceCreate                   EventType = "STAGE_INSTANCE_CREATE"
	EventStageInstanceUpdate                   EventType = "STAGE_INSTANCE_UPDATE"
	EventStageInstanceDelete                   EventType = "STAGE_INSTANCE_DELETE"
	EventTypingStart                           EventType = "TYPING_START"
	EventUserUpdate                            EventType = "USER_UPDATE"
	EventVoiceStateUpdate                      EventType = "VOICE_STATE_UPDATE"
	EventVoiceServerUpdate                     EventType = "VOICE_SERVER_UPDATE"
	EventWebhooksUpdate                        EventType = "WEBHOOKS_UPDATE"

	// EventClosed and EventReconnectRequested are synthesized locally
	// by the gateway state machine; they never appear on the wire as
	// a "t" field, so they carry no RawD.
	EventClosed              EventType = "__CLOSED__"
	EventReconnectRequested  EventType = "__RECONNECT_REQUESTED__"
)

// CloseInfo describes a locally-observed WebSocket close.
type CloseInfo struct {
	Code int
}

// Event is the tagged union the user callback receives. Raw carries
// the undecoded "d" JSON for every wire event so callers needing a
// typed view call Decode with a destination matching Discord's
// documented schema for Type; this module does not carry full typed
// payloads for every resource (channels, guilds, members, ...), as
// that full Discord data model is out of scope.
//
// Raw is only valid for the duration of the callback invocation: it
// aliases the byte slice sonic decoded this frame's payload into, and
// the next frame decoded on this shard reuses/discards that memory.
// A handler that must keep data beyond the callback should copy it,
// e.g. via Decode into an owned struct.
type Event struct {
	Type  EventType
	Raw   json.RawMessage
	Close *CloseInfo
}

// Decode unmarshals Raw into dst. It is a no-op returning nil if Raw
// is empty (true for the synthesized Closed/Reconnect events).
func (e Event) Decode(dst any) error {
	if len(e.Raw) == 0 {
		return nil
	}
	return sonic.Unmarshal(e.Raw, dst)
}

// decodeEvent wraps a DISPATCH payload's "t"/"d" into an Event. It
// never fails on an unrecognized "t": forward compatibility with new
// Discord event names means an unknown type is still delivered, just
// without a named EventType constant matching it exactly.
func decodeEvent(t string, raw []byte) (Event, error) {
	if t == "" {
		return Event{}, fmt.Errorf("%w: dispatch payload missing \"t\"", ErrGateway)
	}
	return Event{Type: EventType(t), Raw: json.RawMessage(raw)}, nil
}
