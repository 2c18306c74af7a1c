package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
)

// RelationRepository stores the friend graph as directed edges.
type RelationRepository struct {
	db *gorm.DB
}

func NewRelationRepository(db *gorm.DB) *RelationRepository {
	return &RelationRepository{db: db}
}

// Sets loads every edge touching userID and folds them into the six sets.
func (r *RelationRepository) Sets(ctx context.Context, userID uint) (*models.RelationSets, error) {
	var rows []models.UserRelation
	err := r.db.WithContext(ctx).
		Where("user_id = ? OR peer_id = ?", userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sets := models.NewRelationSets()
	for _, row := range rows {
		outgoing := row.UserID == userID
		switch row.Kind {
		case models.RelationFriend:
			if outgoing {
				sets.Friends[row.PeerID] = struct{}{}
			}
		case models.RelationRequest:
			if outgoing {
				sets.SentFriendRequests[row.PeerID] = struct{}{}
			} else {
				sets.ReceivedFriendRequests[row.UserID] = struct{}{}
			}
		case models.RelationDeclined:
			if outgoing {
				sets.DeclinedFriendRequests[row.PeerID] = struct{}{}
			}
		case models.RelationBlock:
			if outgoing {
				sets.BlockedUsers[row.PeerID] = struct{}{}
			} else {
				sets.BlockedBy[row.UserID] = struct{}{}
			}
		}
	}
	return sets, nil
}

// SendRequest records a pending request and clears an earlier decline of the
// same sender by the target.
func (r *RelationRepository) SendRequest(ctx context.Context, from, to uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteEdge(tx, to, from, models.RelationDeclined); err != nil {
			return err
		}
		return insertEdges(tx, models.UserRelation{UserID: from, PeerID: to, Kind: models.RelationRequest})
	})
}

// AcceptRequest turns the request from → to into a friendship. It returns
// gorm.ErrRecordNotFound when no such request is pending.
func (r *RelationRepository) AcceptRequest(ctx context.Context, from, to uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND peer_id = ? AND kind = ?", from, to, models.RelationRequest).
			Delete(&models.UserRelation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		// A crossing request in the other direction is satisfied as well.
		if err := deleteEdge(tx, to, from, models.RelationRequest); err != nil {
			return err
		}
		return insertEdges(tx,
			models.UserRelation{UserID: from, PeerID: to, Kind: models.RelationFriend},
			models.UserRelation{UserID: to, PeerID: from, Kind: models.RelationFriend},
		)
	})
}

// DeclineRequest removes the request from → to and remembers the decline.
func (r *RelationRepository) DeclineRequest(ctx context.Context, from, to uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND peer_id = ? AND kind = ?", from, to, models.RelationRequest).
			Delete(&models.UserRelation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return insertEdges(tx, models.UserRelation{UserID: to, PeerID: from, Kind: models.RelationDeclined})
	})
}

// CancelRequest withdraws a request the caller sent.
func (r *RelationRepository) CancelRequest(ctx context.Context, from, to uint) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND peer_id = ? AND kind = ?", from, to, models.RelationRequest).
		Delete(&models.UserRelation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Unfriend removes the friendship in both directions.
func (r *RelationRepository) Unfriend(ctx context.Context, a, b uint) error {
	res := r.db.WithContext(ctx).
		Where("kind = ? AND ((user_id = ? AND peer_id = ?) OR (user_id = ? AND peer_id = ?))",
			models.RelationFriend, a, b, b, a).
		Delete(&models.UserRelation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Block drops friendship and pending requests in both directions and stores
// the block, all in one transaction.
func (r *RelationRepository) Block(ctx context.Context, blocker, blocked uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("kind IN ? AND ((user_id = ? AND peer_id = ?) OR (user_id = ? AND peer_id = ?))",
			[]models.RelationKind{models.RelationFriend, models.RelationRequest},
			blocker, blocked, blocked, blocker).
			Delete(&models.UserRelation{}).Error
		if err != nil {
			return err
		}
		return insertEdges(tx, models.UserRelation{UserID: blocker, PeerID: blocked, Kind: models.RelationBlock})
	})
}

// Unblock returns gorm.ErrRecordNotFound if blocker did not block blocked.
func (r *RelationRepository) Unblock(ctx context.Context, blocker, blocked uint) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND peer_id = ? AND kind = ?", blocker, blocked, models.RelationBlock).
		Delete(&models.UserRelation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func deleteEdge(tx *gorm.DB, userID, peerID uint, kind models.RelationKind) error {
	return tx.Where("user_id = ? AND peer_id = ? AND kind = ?", userID, peerID, kind).
		Delete(&models.UserRelation{}).Error
}

func insertEdges(tx *gorm.DB, edges ...models.UserRelation) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edges).Error
}
