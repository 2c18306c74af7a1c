package models

import "time"

// RelationKind is the edge type stored in user_relations.
type RelationKind string

const (
	// RelationFriend is stored once per direction.
	RelationFriend RelationKind = "friend"
	// RelationRequest is a pending request from UserID to PeerID.
	RelationRequest RelationKind = "request"
	// RelationDeclined records that UserID declined a request from PeerID.
	RelationDeclined RelationKind = "declined"
	// RelationBlock means UserID blocks PeerID.
	RelationBlock RelationKind = "block"
)

// UserRelation is one directed edge of the friend graph.
type UserRelation struct {
	UserID    uint         `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PeerID    uint         `gorm:"primaryKey;autoIncrement:false;index" json:"peer_id"`
	Kind      RelationKind `gorm:"primaryKey;type:varchar(16)" json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
}

func (UserRelation) TableName() string {
	return "user_relations"
}

// RelationSets is the per-user view of the friend graph.
type RelationSets struct {
	Friends                map[uint]struct{}
	SentFriendRequests     map[uint]struct{}
	ReceivedFriendRequests map[uint]struct{}
	DeclinedFriendRequests map[uint]struct{}
	BlockedUsers           map[uint]struct{}
	BlockedBy              map[uint]struct{}
}

func NewRelationSets() *RelationSets {
	return &RelationSets{
		Friends:                make(map[uint]struct{}),
		SentFriendRequests:     make(map[uint]struct{}),
		ReceivedFriendRequests: make(map[uint]struct{}),
		DeclinedFriendRequests: make(map[uint]struct{}),
		BlockedUsers:           make(map[uint]struct{}),
		BlockedBy:              make(map[uint]struct{}),
	}
}

func (s *RelationSets) IsFriend(id uint) bool {
	_, ok := s.Friends[id]
	return ok
}

// IsBlockedEitherWay reports a block in either direction.
func (s *RelationSets) IsBlockedEitherWay(id uint) bool {
	if _, ok := s.BlockedUsers[id]; ok {
		return true
	}
	_, ok := s.BlockedBy[id]
	return ok
}

// VisibleFriends returns friends that are not blocked in either direction.
func (s *RelationSets) VisibleFriends() []uint {
	ids := make([]uint, 0, len(s.Friends))
	for id := range s.Friends {
		if !s.IsBlockedEitherWay(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// RelationTo names the relation of the set owner to id, for API payloads.
func (s *RelationSets) RelationTo(id uint) string {
	switch {
	case s.IsBlockedEitherWay(id):
		return "blocked"
	case s.IsFriend(id):
		return "friend"
	}
	if _, ok := s.SentFriendRequests[id]; ok {
		return "request_sent"
	}
	if _, ok := s.ReceivedFriendRequests[id]; ok {
		return "request_received"
	}
	return "none"
}
