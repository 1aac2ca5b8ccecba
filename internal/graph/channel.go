package graph

import (
	"context"
	"encoding/json"

	"github.com/notadamking/elemental/internal/errs"
	"github.com/notadamking/elemental/internal/idgen"
	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
)

// FindOrCreateDirectChannel interns the canonical direct channel for the
// unordered pair {a, b}. actor must be one of the two participants.
func (s *Service) FindOrCreateDirectChannel(ctx context.Context, a, b, actor string) (*types.Channel, bool, error) {
	const op = "graph.FindOrCreateDirectChannel"
	if actor != a && actor != b {
		return nil, false, errs.Membership(op, errs.ReasonNotAMember, "actor must be one of the channel participants", map[string]any{"a": a, "b": b, "actor": actor})
	}

	name := types.CanonicalDirectChannelName(a, b)
	kind := types.KindChannel
	rows, _, err := s.backend.ListElements(ctx, storage.ElementQuery{Kind: &kind, JSONEquals: map[string]any{"name": name, "channelType": string(types.ChannelDirect)}})
	if err != nil {
		return nil, false, errs.Wrap(op, err)
	}
	for _, row := range rows {
		if row.DeletedAt != nil {
			continue
		}
		elem, err := storage.Decode(row)
		if err != nil {
			return nil, false, errs.Wrap(op, err)
		}
		return elem.(*types.Channel), false, nil
	}

	now := s.now()
	id := idgen.NewRootID(name, "", actor, now, 0)
	ch := types.NewChannel(id, actor, now, types.ChannelDirect, name)
	ch.Members = []string{a, b}
	if err := s.Create(ctx, ch, actor); err != nil {
		return nil, false, err
	}
	return ch, true, nil
}

// AddChannelMember adds member to a group channel, idempotently. Direct
// channels reject membership changes outright.
func (s *Service) AddChannelMember(ctx context.Context, channelID, member, actor string) (*types.Channel, error) {
	const op = "graph.AddChannelMember"
	ch, err := s.loadGroupChannel(op, ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !ch.Permissions.CanModifyMembers(actor) {
		return nil, errs.Membership(op, errs.ReasonCannotModifyMembers, "actor may not modify membership", map[string]any{"channel": channelID, "actor": actor})
	}
	if ch.HasMember(member) {
		return ch, nil
	}
	members := append(append([]string(nil), ch.Members...), member)
	return s.mutateChannelMembers(ctx, channelID, members, types.EventMemberAdded, actor, member)
}

// RemoveChannelMember removes member from a group channel.
func (s *Service) RemoveChannelMember(ctx context.Context, channelID, member, actor string) (*types.Channel, error) {
	const op = "graph.RemoveChannelMember"
	ch, err := s.loadGroupChannel(op, ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !ch.Permissions.CanModifyMembers(actor) {
		return nil, errs.Membership(op, errs.ReasonCannotModifyMembers, "actor may not modify membership", map[string]any{"channel": channelID, "actor": actor})
	}
	return s.removeMember(ctx, ch, member, actor)
}

// LeaveChannel removes actor themself from a group channel; self-removal
// is always permitted regardless of canModifyMembers.
func (s *Service) LeaveChannel(ctx context.Context, channelID, actor string) (*types.Channel, error) {
	const op = "graph.LeaveChannel"
	ch, err := s.loadGroupChannel(op, ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.removeMember(ctx, ch, actor, actor)
}

func (s *Service) removeMember(ctx context.Context, ch *types.Channel, member, actor string) (*types.Channel, error) {
	if !ch.HasMember(member) {
		return ch, nil
	}
	members := make([]string, 0, len(ch.Members))
	for _, m := range ch.Members {
		if m != member {
			members = append(members, m)
		}
	}
	return s.mutateChannelMembers(ctx, ch.ID, members, types.EventMemberRemoved, actor, member)
}

// mutateChannelMembers persists a channel's new member list and emits a
// single membership event, inside one transaction.
func (s *Service) mutateChannelMembers(ctx context.Context, channelID string, members []string, evType types.EventType, actor, member string) (*types.Channel, error) {
	var updated *types.Channel
	err := s.backend.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		row, err := tx.GetElement(ctx, channelID)
		if err != nil {
			return err
		}
		if row == nil {
			return errs.NotFound("graph.mutateChannelMembers", "channel", channelID)
		}
		elem, err := storage.Decode(*row)
		if err != nil {
			return err
		}
		ch := elem.(*types.Channel)
		ch.Members = members
		ch.UpdatedAt = s.now()
		if _, err := types.RefreshContentHash(ch); err != nil {
			return err
		}
		newRow, err := storage.Encode(ch)
		if err != nil {
			return err
		}
		if err := tx.PutElement(ctx, newRow); err != nil {
			return err
		}
		raw, _ := json.Marshal(map[string]string{"member": member})
		if _, err := tx.AppendEvent(ctx, types.Event{ElementID: channelID, Type: evType, Actor: actor, NewValue: raw, CreatedAt: s.now()}); err != nil {
			return err
		}
		if err := tx.MarkDirty(ctx, channelID); err != nil {
			return err
		}
		updated = ch
		return nil
	})
	return updated, err
}

func (s *Service) loadGroupChannel(op string, ctx context.Context, channelID string) (*types.Channel, error) {
	row, err := s.backend.GetElement(ctx, channelID)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	if row == nil || row.Kind != types.KindChannel {
		return nil, errs.NotFound(op, "channel", channelID)
	}
	elem, err := storage.Decode(*row)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	ch := elem.(*types.Channel)
	if ch.Type == types.ChannelDirect {
		return nil, errs.Constraint(op, errs.ReasonDirectChannelMembership, "direct channel membership is fixed", map[string]any{"channel": channelID})
	}
	return ch, nil
}

// DirectMessageInput is the payload for send_direct_message.
type DirectMessageInput struct {
	Body       *string
	ContentRef *string
	Attachments []string
}

// SendDirectMessage interns the canonical direct channel between sender
// and recipient, then creates a Message in it.
func (s *Service) SendDirectMessage(ctx context.Context, sender, recipient string, input DirectMessageInput) (*types.Message, error) {
	ch, _, err := s.FindOrCreateDirectChannel(ctx, sender, recipient, sender)
	if err != nil {
		return nil, err
	}

	now := s.now()
	id := idgen.NewRootID(ch.ID, sender, sender, now, 0)
	msg := types.NewMessage(id, sender, now, ch.ID, sender)
	msg.Body = input.Body
	msg.ContentRef = input.ContentRef
	msg.Attachments = input.Attachments

	if err := s.Create(ctx, msg, sender); err != nil {
		return nil, err
	}
	return msg, nil
}
