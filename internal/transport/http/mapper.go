package http

import (
	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/proto"
)

func outboundFromEvent(event core.ChatEvent) proto.Outbound {
	out := proto.Outbound{
		Message:   event.Text(),
		Name:      event.Author,
		Timestamp: event.Timestamp,
	}
	switch event.Kind {
	case core.EventPosted:
		out.Type = proto.OutboundTypeMessage
	case core.EventJoined:
		out.Type = proto.OutboundTypeJoined
	case core.EventLeft:
		out.Type = proto.OutboundTypeLeft
	case core.EventError:
		out.Type = proto.OutboundTypeError
		if event.Error != nil {
			out.Code = event.Error.Code
		} else {
			out.Code = "unknown"
		}
	}
	return out
}

func historyFromEvents(room string, events []core.ChatEvent, limit int) proto.HistoryResponse {
	resp := proto.HistoryResponse{
		Room: room,
		Messages: lo.Map(events, func(ev core.ChatEvent, _ int) proto.HistoryEntry {
			return proto.HistoryEntry{
				Seq:       ev.Seq,
				Message:   ev.Body,
				Name:      ev.Author,
				Timestamp: ev.Timestamp,
			}
		}),
	}
	// A full page may have more behind it.
	if len(events) == limit && limit > 0 {
		resp.Next = events[len(events)-1].Seq
	}
	return resp
}

func roomStatuses(infos []core.RoomInfo) []proto.RoomStatus {
	return lo.Map(infos, func(info core.RoomInfo, _ int) proto.RoomStatus {
		return proto.RoomStatus{Room: info.Room, Members: info.Members}
	})
}
