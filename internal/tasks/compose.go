package tasks

import (
	"context"

	"github.com/nhle/taskflow/internal/apperr"
	"github.com/nhle/taskflow/internal/model"
)

// compose attaches user identities to a task. The assignee carries id,
// name, email and avatar; the creator id, name and email; comment authors
// id, name and avatar.
func (s *Service) compose(ctx context.Context, task model.Task, comments []model.Comment) (model.TaskView, error) {
	ids := []string{task.CreatedBy}
	if task.AssignedTo != nil {
		ids = append(ids, *task.AssignedTo)
	}
	for _, c := range comments {
		ids = append(ids, c.AuthorID)
	}

	users, err := s.store.GetUserSummaries(ctx, ids)
	if err != nil {
		return model.TaskView{}, apperr.Wrap(apperr.Internal, "loading task users", err)
	}

	view := viewOf(task, users)
	if len(comments) > 0 {
		view.Comments = make([]model.CommentView, 0, len(comments))
		for _, c := range comments {
			cv := model.CommentView{ID: c.ID, Text: c.Text, CreatedAt: c.CreatedAt}
			if author, ok := users[c.AuthorID]; ok {
				author.Email = ""
				cv.Author = &author
			}
			view.Comments = append(view.Comments, cv)
		}
	}
	return view, nil
}

// composeAll composes a page of tasks with one user lookup.
func (s *Service) composeAll(ctx context.Context, tasks []model.Task) ([]model.TaskView, error) {
	ids := make([]string, 0, 2*len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.CreatedBy)
		if task.AssignedTo != nil {
			ids = append(ids, *task.AssignedTo)
		}
	}

	users, err := s.store.GetUserSummaries(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "loading task users", err)
	}

	views := make([]model.TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, viewOf(task, users))
	}
	return views, nil
}

func viewOf(task model.Task, users map[string]model.UserSummary) model.TaskView {
	view := model.TaskView{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Priority:    task.Priority,
		DueDate:     task.DueDate,
		Paramount:   task.Paramount,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
	if task.AssignedTo != nil {
		if assignee, ok := users[*task.AssignedTo]; ok {
			view.AssignedTo = &assignee
		}
	}
	if creator, ok := users[task.CreatedBy]; ok {
		creator.Avatar = ""
		view.CreatedBy = &creator
	}
	return view
}
