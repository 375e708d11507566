package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/group-notifier/internal/domain/model"
	"github.com/ilindan-dev/group-notifier/internal/service"
)

// CreateNotificationRequest is the JSON body of a creation without upload.
// Validation of the fields themselves belongs to the service.
type CreateNotificationRequest struct {
	Title         string   `json:"title"`
	Message       string   `json:"message"`
	TargetGroups  []string `json:"targetGroups"`
	IsInteractive bool     `json:"isInteractive"`
	ImageURLs     []string `json:"imageUrls"`
	ScheduledFor  string   `json:"scheduledFor"`
}

// RespondRequest records a user's answer.
type RespondRequest struct {
	UserID   string `json:"userId"`
	Response string `json:"response"`
}

// NotificationResponse is the public view of a notification.
type NotificationResponse struct {
	ID              uuid.UUID          `json:"id"`
	Title           string             `json:"title"`
	Message         string             `json:"message"`
	TargetGroups    []string           `json:"targetGroups"`
	ImageURLs       []string           `json:"imageUrls"`
	IsInteractive   bool               `json:"isInteractive"`
	SentAt          *time.Time         `json:"sentAt"`
	ScheduledFor    *time.Time         `json:"scheduledFor,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	Responses       []ResponseResponse `json:"responses"`
	InterestedCount int                `json:"interestedCount"`
}

// ResponseResponse is one recorded answer.
type ResponseResponse struct {
	UserID      uuid.UUID `json:"userId"`
	Response    string    `json:"response"`
	RespondedAt time.Time `json:"respondedAt"`
}

// NotificationSummaryResponse is a list item.
type NotificationSummaryResponse struct {
	NotificationResponse
	// UserResponse is null when the requesting user has not answered or is unknown.
	UserResponse *string `json:"userResponse"`
}

// UserSummaryResponse describes a user who is interested in a notification.
type UserSummaryResponse struct {
	ID             uuid.UUID `json:"id"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Birthdate      *string   `json:"birthdate"`
	Groups         []string  `json:"groups"`
	ProfilePicture *string   `json:"profilePicture"`
}

// PhotoSetResponse is the media of one sent notification.
type PhotoSetResponse struct {
	ImageURL     []string  `json:"imageUrl"`
	TargetGroups []string  `json:"targetGroups"`
	SentAt       time.Time `json:"sentAt"`
}

// GroupsResponse lists the allowed groups.
type GroupsResponse struct {
	Groups []string `json:"groups"`
}

// ErrorResponse defines a standard structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// toNotificationResponse is a helper function to map the domain model to the DTO.
func toNotificationResponse(n *model.Notification) NotificationResponse {
	responses := make([]ResponseResponse, 0, len(n.Responses))
	for _, r := range n.Responses {
		responses = append(responses, ResponseResponse{
			UserID:      r.UserID,
			Response:    string(r.Value),
			RespondedAt: r.RespondedAt,
		})
	}
	return NotificationResponse{
		ID:              n.ID,
		Title:           n.Title,
		Message:         n.Message,
		TargetGroups:    nonNil(n.TargetGroups),
		ImageURLs:       nonNil(n.MediaURLs),
		IsInteractive:   n.IsInteractive,
		SentAt:          n.SentAt,
		ScheduledFor:    n.ScheduledFor,
		CreatedAt:       n.CreatedAt,
		Responses:       responses,
		InterestedCount: n.InterestedCount(),
	}
}

func toSummaryResponses(items []service.NotificationSummary) []NotificationSummaryResponse {
	out := make([]NotificationSummaryResponse, 0, len(items))
	for _, it := range items {
		resp := NotificationSummaryResponse{NotificationResponse: toNotificationResponse(it.Notification)}
		resp.InterestedCount = it.InterestedCount
		if it.UserResponse != nil {
			v := string(*it.UserResponse)
			resp.UserResponse = &v
		}
		out = append(out, resp)
	}
	return out
}

func toUserSummaries(users []*model.User) []UserSummaryResponse {
	out := make([]UserSummaryResponse, 0, len(users))
	for _, u := range users {
		var birthdate *string
		if u.Birthdate != nil {
			b := u.Birthdate.Format(time.DateOnly)
			birthdate = &b
		}
		out = append(out, UserSummaryResponse{
			ID:             u.ID,
			FirstName:      u.FirstName,
			LastName:       u.LastName,
			Birthdate:      birthdate,
			Groups:         nonNil(u.Groups),
			ProfilePicture: u.ProfilePicture,
		})
	}
	return out
}

func toPhotoSets(sets []service.PhotoSet) []PhotoSetResponse {
	out := make([]PhotoSetResponse, 0, len(sets))
	for _, s := range sets {
		out = append(out, PhotoSetResponse{
			ImageURL:     nonNil(s.URLs),
			TargetGroups: nonNil(s.TargetGroups),
			SentAt:       s.SentAt,
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
