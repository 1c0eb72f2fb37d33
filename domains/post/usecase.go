package post

import "context"

// ICommitter persists a new post after re-checking dedupe and slot
// occupancy against the current store contents.
type ICommitter interface {
	Commit(ctx context.Context, p Post) (Post, *Skip, error)
}

type IPostUsecase interface {
	List(ctx context.Context, request ListRequest) ([]Post, error)
	Get(ctx context.Context, id string) (Post, error)
	Manage(ctx context.Context, request ManageRequest) (ManageResponse, error)
}

type ManageAction string

const (
	ActionDelete       ManageAction = "delete"
	ActionForcePost    ManageAction = "force_post"
	ActionToggleStatus ManageAction = "toggle_status"
	ActionEdit         ManageAction = "edit"
)

type ListRequest struct {
	Status Status `json:"status" query:"status"`
	Limit  int    `json:"limit" query:"limit"`
}

type ManageRequest struct {
	ID     string       `json:"id" form:"id"`
	Action ManageAction `json:"action" form:"action"`
	Draft  string       `json:"draft,omitempty" form:"draft"`
}

type ManageResponse struct {
	Post    Post   `json:"post"`
	Message string `json:"message"`
}
