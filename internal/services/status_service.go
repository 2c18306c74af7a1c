package services

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/repositories"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/utils"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/media"
)

const (
	statusMediaFolder     = "status"
	defaultStatusColor    = "#000000"
	maxStatusTextLength   = 1000
	maxBulkViewCandidates = 200
)

// StatusService 动态服务. Statuses are visible to their owner and to friends
// with no block in either direction, until they expire.
type StatusService struct {
	statuses  *repositories.StatusRepository
	relations *repositories.RelationRepository
	users     *repositories.UserRepository
	media     MediaStore
	notifier  Notifier
	log       *logger.Logger
	ttl       time.Duration
	now       func() time.Time
}

func NewStatusService(
	statuses *repositories.StatusRepository,
	relations *repositories.RelationRepository,
	users *repositories.UserRepository,
	store MediaStore,
	notifier Notifier,
	log *logger.Logger,
	ttl time.Duration,
) *StatusService {
	return &StatusService{
		statuses:  statuses,
		relations: relations,
		users:     users,
		media:     store,
		notifier:  notifier,
		log:       log,
		ttl:       ttl,
		now:       time.Now,
	}
}

// StatusContent is structured status content sent as JSON.
type StatusContent struct {
	Type            models.ContentType `json:"type"`
	Text            string             `json:"text"`
	MediaURL        string             `json:"media_url"`
	BackgroundColor string             `json:"background_color"`
	FontStyle       string             `json:"font_style"`
}

// CreateStatusRequest carries exactly one of File and Content. Caption and
// BackgroundColor only apply to file uploads.
type CreateStatusRequest struct {
	File            *FileUpload
	Caption         string
	BackgroundColor string
	Content         *StatusContent
}

// StatusItem is a status as returned to clients.
type StatusItem struct {
	models.Status
	ViewCount int64 `json:"view_count"`
	Viewed    bool  `json:"viewed"`
}

// FriendStatusGroup is one author's live statuses, oldest first.
type FriendStatusGroup struct {
	User        models.PublicUser `json:"user"`
	Statuses    []StatusItem      `json:"statuses"`
	HasUnviewed bool              `json:"has_unviewed"`
	LatestAt    time.Time         `json:"latest_at"`
}

type Feed struct {
	MyStatuses     []StatusItem        `json:"my_statuses"`
	FriendStatuses []FriendStatusGroup `json:"friend_statuses"`
}

// ViewResult is the outcome of marking one status viewed.
type ViewResult struct {
	StatusID   uint  `json:"status_id"`
	OwnStatus  bool  `json:"own_status"`
	WasNewView bool  `json:"was_new_view"`
	TotalViews int64 `json:"total_views"`
}

type BulkViewResult struct {
	Viewed        []uint `json:"viewed"`
	AlreadyViewed int    `json:"already_viewed"`
	Skipped       int    `json:"skipped"`
}

type StatusViewer struct {
	User     models.PublicUser `json:"user"`
	ViewedAt time.Time         `json:"viewed_at"`
}

// CreateStatus stores a status that expires after the configured TTL, then
// notifies the owner before every visible friend.
func (s *StatusService) CreateStatus(ctx context.Context, ownerID uint, req *CreateStatusRequest) (*StatusItem, error) {
	if (req.File == nil) == (req.Content == nil) {
		return nil, apperr.Validation("provide either a file or status content")
	}

	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return nil, lookup(err, ErrUserNotFound)
	}

	now := s.now()
	status := &models.Status{
		UserID:    ownerID,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if req.File != nil {
		if err := s.fromUpload(ctx, status, req); err != nil {
			return nil, err
		}
	} else if err := fromContent(status, req.Content); err != nil {
		return nil, err
	}

	if err := s.statuses.Create(ctx, status); err != nil {
		releaseMedia(ctx, s.log, s.media, status.MediaPublicID, resourceTypeOf(status))
		return nil, upstream(err)
	}

	item := &StatusItem{Status: *status}
	s.notifier.NotifyUsers(append([]uint{ownerID}, s.friendsOf(ctx, ownerID)...), EventStatusUploaded, payload{
		"status": item,
		"user":   owner.Public(),
	})
	return item, nil
}

func (s *StatusService) fromUpload(ctx context.Context, status *models.Status, req *CreateStatusRequest) error {
	switch media.ResourceTypeFor(req.File.MIMEType) {
	case media.ResourceImage:
		status.ContentType = models.ContentImage
	case media.ResourceVideo:
		if !strings.HasPrefix(req.File.MIMEType, "video/") {
			return apperr.Validation("status files must be images or videos")
		}
		status.ContentType = models.ContentVideo
	default:
		return apperr.Validation("status files must be images or videos")
	}
	if err := setText(status, req.Caption, req.BackgroundColor); err != nil {
		return err
	}

	obj, err := uploadFile(ctx, s.media, req.File, statusMediaFolder)
	if err != nil {
		return err
	}
	status.MediaURL = obj.URL
	status.MediaPublicID = obj.PublicID
	return nil
}

func fromContent(status *models.Status, c *StatusContent) error {
	switch c.Type {
	case models.ContentText:
		if strings.TrimSpace(c.Text) == "" {
			return apperr.Validation("text status requires text")
		}
	case models.ContentImage, models.ContentVideo:
		if strings.TrimSpace(c.MediaURL) == "" {
			return apperr.Validation("media status requires media_url")
		}
		status.MediaURL = strings.TrimSpace(c.MediaURL)
	default:
		return apperr.Validation("status type must be text, image or video")
	}
	status.ContentType = c.Type
	status.FontStyle = c.FontStyle
	return setText(status, c.Text, c.BackgroundColor)
}

func setText(status *models.Status, text, color string) error {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > maxStatusTextLength {
		return apperr.Validation("status text is too long")
	}
	if color == "" {
		color = defaultStatusColor
	} else if !utils.ValidateColor(color) {
		return apperr.Validation("background_color must be a hex color")
	}
	status.Text = text
	status.BackgroundColor = color
	return nil
}

// ListFeed returns the caller's live statuses and their friends' grouped by
// author. Authors blocked in either direction are left out even if the
// friendship row survives.
func (s *StatusService) ListFeed(ctx context.Context, userID uint) (*Feed, error) {
	now := s.now()
	sets, err := s.relations.Sets(ctx, userID)
	if err != nil {
		return nil, upstream(err)
	}

	mine, err := s.statuses.ListActiveByUsers(ctx, []uint{userID}, now)
	if err != nil {
		return nil, upstream(err)
	}
	counts, err := s.statuses.CountViewsByStatus(ctx, statusIDs(mine))
	if err != nil {
		return nil, upstream(err)
	}

	feed := &Feed{
		MyStatuses:     make([]StatusItem, 0, len(mine)),
		FriendStatuses: []FriendStatusGroup{},
	}
	for _, st := range mine {
		feed.MyStatuses = append(feed.MyStatuses, StatusItem{Status: st, ViewCount: counts[st.ID]})
	}

	theirs, err := s.statuses.ListActiveByUsers(ctx, sets.VisibleFriends(), now)
	if err != nil {
		return nil, upstream(err)
	}
	if len(theirs) == 0 {
		return feed, nil
	}
	viewed, err := s.statuses.ViewedSet(ctx, userID, statusIDs(theirs))
	if err != nil {
		return nil, upstream(err)
	}

	byAuthor := make(map[uint][]models.Status)
	var authors []uint
	for _, st := range theirs {
		if _, seen := byAuthor[st.UserID]; !seen {
			authors = append(authors, st.UserID)
		}
		byAuthor[st.UserID] = append(byAuthor[st.UserID], st)
	}
	users, err := s.users.GetByIDs(ctx, authors)
	if err != nil {
		return nil, upstream(err)
	}

	for _, author := range authors {
		user, ok := users[author]
		if !ok {
			continue
		}
		feed.FriendStatuses = append(feed.FriendStatuses, buildGroup(user.Public(), byAuthor[author], viewed))
	}
	sortGroups(feed.FriendStatuses)
	return feed, nil
}

func buildGroup(user models.PublicUser, statuses []models.Status, viewed map[uint]struct{}) FriendStatusGroup {
	g := FriendStatusGroup{User: user, Statuses: make([]StatusItem, 0, len(statuses))}
	for _, st := range statuses {
		_, seen := viewed[st.ID]
		g.Statuses = append(g.Statuses, StatusItem{Status: st, Viewed: seen})
		if st.CreatedAt.After(g.LatestAt) {
			g.LatestAt = st.CreatedAt
		}
	}
	slices.SortStableFunc(g.Statuses, func(a, b StatusItem) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	g.HasUnviewed = hasUnviewed(statusIDs(statuses), viewed)
	return g
}

// hasUnviewed reports whether any of ids is missing from viewed.
func hasUnviewed(ids []uint, viewed map[uint]struct{}) bool {
	for _, id := range ids {
		if _, ok := viewed[id]; !ok {
			return true
		}
	}
	return false
}

// sortGroups puts groups with unviewed statuses first, newest first within
// each half.
func sortGroups(groups []FriendStatusGroup) {
	slices.SortStableFunc(groups, func(a, b FriendStatusGroup) int {
		if a.HasUnviewed != b.HasUnviewed {
			if a.HasUnviewed {
				return -1
			}
			return 1
		}
		if c := b.LatestAt.Compare(a.LatestAt); c != 0 {
			return c
		}
		return cmp.Compare(a.User.ID, b.User.ID)
	})
}

// GetStatus returns one live status to its owner or to an eligible friend.
func (s *StatusService) GetStatus(ctx context.Context, userID, statusID uint) (*StatusItem, error) {
	status, err := s.statuses.GetActive(ctx, statusID, s.now())
	if err != nil {
		return nil, lookup(err, ErrStatusNotFound)
	}

	if status.UserID == userID {
		n, err := s.statuses.CountViews(ctx, status.ID)
		if err != nil {
			return nil, upstream(err)
		}
		return &StatusItem{Status: *status, ViewCount: n}, nil
	}

	if err := s.checkEligible(ctx, userID, status.UserID); err != nil {
		return nil, err
	}
	viewed, err := s.statuses.ViewedSet(ctx, userID, []uint{status.ID})
	if err != nil {
		return nil, upstream(err)
	}
	_, seen := viewed[status.ID]
	return &StatusItem{Status: *status, Viewed: seen}, nil
}

func (s *StatusService) checkEligible(ctx context.Context, viewerID, ownerID uint) error {
	sets, err := s.relations.Sets(ctx, viewerID)
	if err != nil {
		return upstream(err)
	}
	if !canView(sets, ownerID) {
		return ErrStatusForbidden
	}
	return nil
}

// canView holds when owner is a friend and neither side blocks the other.
func canView(viewer *models.RelationSets, ownerID uint) bool {
	return viewer.IsFriend(ownerID) && !viewer.IsBlockedEitherWay(ownerID)
}

// MarkViewed records that userID saw statusID. Marking one's own status
// succeeds without recording anything; repeating a view is a no-op.
func (s *StatusService) MarkViewed(ctx context.Context, userID, statusID uint) (*ViewResult, error) {
	now := s.now()
	status, err := s.statuses.GetActive(ctx, statusID, now)
	if err != nil {
		return nil, lookup(err, ErrStatusNotFound)
	}

	if status.UserID == userID {
		n, err := s.statuses.CountViews(ctx, status.ID)
		if err != nil {
			return nil, upstream(err)
		}
		return &ViewResult{StatusID: status.ID, OwnStatus: true, TotalViews: n}, nil
	}

	if err := s.checkEligible(ctx, userID, status.UserID); err != nil {
		return nil, err
	}
	return s.recordView(ctx, status, userID, now)
}

func (s *StatusService) recordView(ctx context.Context, status *models.Status, viewerID uint, at time.Time) (*ViewResult, error) {
	inserted, err := s.statuses.AddView(ctx, status.ID, viewerID, at)
	if err != nil {
		return nil, upstream(err)
	}
	total, err := s.statuses.CountViews(ctx, status.ID)
	if err != nil {
		return nil, upstream(err)
	}

	if inserted {
		s.notifyViewed(ctx, status, viewerID, at, total)
	}
	return &ViewResult{StatusID: status.ID, WasNewView: inserted, TotalViews: total}, nil
}

func (s *StatusService) notifyViewed(ctx context.Context, status *models.Status, viewerID uint, at time.Time, total int64) {
	viewer := models.PublicUser{ID: viewerID}
	if u, err := s.users.GetByID(ctx, viewerID); err == nil {
		viewer = u.Public()
	} else {
		s.log.WarnContext(ctx, "load viewer for notification", zap.Uint("user_id", viewerID), zap.Error(err))
	}
	s.notifier.NotifyUsers([]uint{status.UserID}, EventStatusViewed, payload{
		"status_id":   status.ID,
		"viewer":      viewer,
		"viewed_at":   at,
		"total_views": total,
	})
}

// MarkViewedBulk applies MarkViewed to every candidate id. Malformed,
// missing, expired, own and ineligible ids are counted as skipped, as is
// everything past the first maxBulkViewCandidates ids.
func (s *StatusService) MarkViewedBulk(ctx context.Context, userID uint, candidates []string) (*BulkViewResult, error) {
	result := &BulkViewResult{Viewed: []uint{}}
	if len(candidates) > maxBulkViewCandidates {
		result.Skipped = len(candidates) - maxBulkViewCandidates
		candidates = candidates[:maxBulkViewCandidates]
	}

	var ids []uint
	seen := make(map[uint]struct{}, len(candidates))
	for _, raw := range candidates {
		id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil || id == 0 {
			result.Skipped++
			continue
		}
		if _, dup := seen[uint(id)]; dup {
			continue
		}
		seen[uint(id)] = struct{}{}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		return result, nil
	}

	now := s.now()
	sets, err := s.relations.Sets(ctx, userID)
	if err != nil {
		return nil, upstream(err)
	}
	live, err := s.statuses.ListActiveByIDs(ctx, ids, now)
	if err != nil {
		return nil, upstream(err)
	}
	byID := make(map[uint]*models.Status, len(live))
	for i := range live {
		byID[live[i].ID] = &live[i]
	}

	for _, id := range ids {
		status, ok := byID[id]
		if !ok || status.UserID == userID || !canView(sets, status.UserID) {
			result.Skipped++
			continue
		}
		res, err := s.recordView(ctx, status, userID, now)
		if err != nil {
			return nil, err
		}
		if res.WasNewView {
			result.Viewed = append(result.Viewed, id)
		} else {
			result.AlreadyViewed++
		}
	}
	return result, nil
}

// ListViewers returns who saw the owner's status, in viewing order.
func (s *StatusService) ListViewers(ctx context.Context, ownerID, statusID uint) ([]StatusViewer, error) {
	status, err := s.statuses.GetActive(ctx, statusID, s.now())
	if err != nil {
		return nil, lookup(err, ErrStatusNotFound)
	}
	if status.UserID != ownerID {
		return nil, ErrNotStatusOwner
	}

	views, err := s.statuses.ListViewers(ctx, statusID)
	if err != nil {
		return nil, upstream(err)
	}
	ids := make([]uint, len(views))
	for i, v := range views {
		ids[i] = v.UserID
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, upstream(err)
	}

	viewers := make([]StatusViewer, 0, len(views))
	for _, v := range views {
		if u, ok := users[v.UserID]; ok {
			viewers = append(viewers, StatusViewer{User: u.Public(), ViewedAt: v.ViewedAt})
		}
	}
	return viewers, nil
}

// DeleteStatus removes the owner's status and its views, then releases its
// media and tells friends. The media delete is attempted once and its failure
// does not undo the deletion.
func (s *StatusService) DeleteStatus(ctx context.Context, ownerID, statusID uint) error {
	status, err := s.statuses.GetActive(ctx, statusID, s.now())
	if err != nil {
		return lookup(err, ErrStatusNotFound)
	}
	if status.UserID != ownerID {
		return ErrNotStatusOwner
	}

	if err := s.statuses.Delete(ctx, status.ID); err != nil {
		return upstream(err)
	}
	if status.HasExternalMedia() {
		releaseMedia(ctx, s.log, s.media, status.MediaPublicID, resourceTypeOf(status))
	}

	s.notifier.NotifyUsers(s.friendsOf(ctx, ownerID), EventStatusDeleted, payload{
		"status_id": status.ID,
		"user_id":   ownerID,
	})
	return nil
}

// ReapExpired physically removes expired statuses and releases their media.
// Reads never depend on it having run.
func (s *StatusService) ReapExpired(ctx context.Context) (int64, error) {
	now := s.now()
	withMedia, err := s.statuses.ListExpiredWithMedia(ctx, now)
	if err != nil {
		return 0, err
	}
	removed, err := s.statuses.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for i := range withMedia {
		releaseMedia(ctx, s.log, s.media, withMedia[i].MediaPublicID, resourceTypeOf(&withMedia[i]))
	}
	return removed, nil
}

// RunReaper calls ReapExpired every interval until ctx is done. A
// non-positive interval disables the reaper.
func (s *StatusService) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.Warn("status reaper disabled", zap.Duration("interval", interval))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.ReapExpired(ctx)
			if err != nil {
				s.log.Error("status reaper failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.log.Info("expired statuses removed", zap.Int64("count", removed))
			}
		}
	}
}

// friendsOf returns the visible friends of userID in ascending id order. A
// lookup failure is logged and yields nobody, since it only feeds
// notifications.
func (s *StatusService) friendsOf(ctx context.Context, userID uint) []uint {
	sets, err := s.relations.Sets(ctx, userID)
	if err != nil {
		s.log.WarnContext(ctx, "load friends for notification", zap.Uint("user_id", userID), zap.Error(err))
		return nil
	}
	ids := sets.VisibleFriends()
	slices.Sort(ids)
	return ids
}

func resourceTypeOf(status *models.Status) string {
	if status.ContentType == models.ContentVideo {
		return media.ResourceVideo
	}
	return media.ResourceImage
}

func statusIDs(statuses []models.Status) []uint {
	ids := make([]uint, len(statuses))
	for i, st := range statuses {
		ids[i] = st.ID
	}
	return ids
}
