// Package tasks orchestrates every task mutation: it resolves the actor,
// consults the policy, persists through the store, records activity and
// hands the resulting event to the notification router.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nhle/taskflow/internal/activity"
	"github.com/nhle/taskflow/internal/apperr"
	"github.com/nhle/taskflow/internal/identity"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notify"
	"github.com/nhle/taskflow/internal/policy"
	"github.com/nhle/taskflow/internal/store"
	"github.com/nhle/taskflow/internal/sync"
)

// Paging defaults for List.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Broadcaster fans an event out to rooms.
type Broadcaster interface {
	Broadcast(event string, payload any, rooms ...string) (int, error)
}

// ListQuery selects a page of tasks. Zero Page and Limit select the
// defaults; an empty Status or "All" disables status filtering.
type ListQuery struct {
	Page   int
	Limit  int
	Status string
}

// TaskPage is one page of composed tasks.
type TaskPage struct {
	Tasks []model.TaskView `json:"tasks"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Pages int              `json:"pages"`
}

// Service implements the task operations.
type Service struct {
	store       store.Store
	recorder    *activity.Recorder
	broadcaster Broadcaster
	dispatcher  *sync.Dispatcher
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a Service. A nil dispatcher makes broadcasts
// synchronous.
func NewService(s store.Store, recorder *activity.Recorder, broadcaster Broadcaster, dispatcher *sync.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		store:       s,
		recorder:    recorder,
		broadcaster: broadcaster,
		dispatcher:  dispatcher,
		logger:      logger,
		now:         time.Now,
	}
}

// Create validates and stores a new task owned by the actor.
func (s *Service) Create(ctx context.Context, changes model.TaskChanges) (model.TaskView, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return model.TaskView{}, err
	}

	result := policy.CheckCreate(actor, changes)
	if err := result.Err(); err != nil {
		return model.TaskView{}, err
	}
	c := result.Changes

	if err := s.requireAssignee(ctx, c.AssignedTo); err != nil {
		return model.TaskView{}, err
	}

	now := s.now().UTC()
	task := model.Task{
		ID:          model.NewID(),
		Title:       strings.TrimSpace(c.Title.Value),
		Description: strings.TrimSpace(c.Description.Value),
		Status:      model.StatusPending,
		Priority:    model.PriorityMedium,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Status.HasValue() {
		task.Status = c.Status.Value
	}
	if c.Priority.HasValue() {
		task.Priority = c.Priority.Value
	}
	if c.Paramount.HasValue() {
		task.Paramount = c.Paramount.Value
	}
	if c.DueDate.HasValue() {
		due, _ := model.ParseDueDate(c.DueDate.Value)
		task.DueDate = &due
	}
	if c.AssignedTo.HasValue() {
		assignee := c.AssignedTo.Value
		task.AssignedTo = &assignee
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		return model.TaskView{}, apperr.Wrap(apperr.Internal, "creating task", err)
	}

	view, err := s.compose(ctx, task, nil)
	if err != nil {
		return model.TaskView{}, err
	}

	s.recorder.Record(ctx, actor.ID, model.ActionCreateTask, activity.TaskTarget(task.ID),
		map[string]any{"title": task.Title})
	s.broadcast(notify.EventTaskCreated, view, task)

	return view, nil
}

// Get returns one task with its comments, if the actor may read it.
func (s *Service) Get(ctx context.Context, id string) (model.TaskView, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return model.TaskView{}, err
	}

	task, err := s.load(ctx, id)
	if err != nil {
		return model.TaskView{}, err
	}

	if err := policy.CanRead(actor, task).Err(); err != nil {
		return model.TaskView{}, err
	}

	comments, err := s.store.GetComments(ctx, task.ID)
	if err != nil {
		return model.TaskView{}, apperr.Wrap(apperr.Internal, "loading comments", err)
	}

	return s.compose(ctx, task, comments)
}

// List returns a page of the tasks visible to the actor, newest first.
// Admins see every task; everyone else sees tasks they are assigned to or
// created.
func (s *Service) List(ctx context.Context, q ListQuery) (TaskPage, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return TaskPage{}, err
	}

	page, limit, err := normalizePaging(q.Page, q.Limit)
	if err != nil {
		return TaskPage{}, err
	}

	var filter store.TaskFilter
	if !actor.IsAdmin() {
		visibleTo := actor.ID
		filter.VisibleTo = &visibleTo
	}
	if q.Status != "" && q.Status != model.StatusAll {
		if !model.Status(q.Status).Valid() {
			return TaskPage{}, apperr.Invalidf("Invalid status filter")
		}
		status := q.Status
		filter.Status = &status
	}

	total, err := s.store.CountTasks(ctx, filter)
	if err != nil {
		return TaskPage{}, apperr.Wrap(apperr.Internal, "counting tasks", err)
	}

	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	tasks, err := s.store.GetTasks(ctx, filter)
	if err != nil {
		return TaskPage{}, apperr.Wrap(apperr.Internal, "listing tasks", err)
	}

	views, err := s.composeAll(ctx, tasks)
	if err != nil {
		return TaskPage{}, err
	}

	return TaskPage{
		Tasks: views,
		Total: total,
		Page:  page,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// Update applies a change set under the policy's field gating.
func (s *Service) Update(ctx context.Context, id string, changes model.TaskChanges) (model.TaskView, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return model.TaskView{}, err
	}

	task, err := s.load(ctx, id)
	if err != nil {
		return model.TaskView{}, err
	}

	result := policy.CheckUpdate(actor, task, changes)
	if err := result.Err(); err != nil {
		return model.TaskView{}, err
	}
	c := result.Changes

	if err := s.requireAssignee(ctx, c.AssignedTo); err != nil {
		return model.TaskView{}, err
	}

	apply(&task, c)
	task.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateTask(ctx, task); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.TaskView{}, apperr.NotFoundf("Task not found")
		}
		return model.TaskView{}, apperr.Wrap(apperr.Internal, "updating task", err)
	}

	view, err := s.compose(ctx, task, nil)
	if err != nil {
		return model.TaskView{}, err
	}

	s.recorder.Record(ctx, actor.ID, model.ActionUpdateTask, activity.TaskTarget(task.ID), c.Details())
	s.broadcast(notify.EventTaskUpdated, view, task)

	return view, nil
}

// Delete removes a task. Only admins may delete, and the role check comes
// before the lookup so other actors never learn whether a task exists.
func (s *Service) Delete(ctx context.Context, id string) (model.TaskDeleted, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return model.TaskDeleted{}, err
	}

	if err := policy.CanDelete(actor).Err(); err != nil {
		return model.TaskDeleted{}, err
	}

	task, err := s.load(ctx, id)
	if err != nil {
		return model.TaskDeleted{}, err
	}

	if err := s.store.DeleteTask(ctx, task.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.TaskDeleted{}, apperr.NotFoundf("Task not found")
		}
		return model.TaskDeleted{}, apperr.Wrap(apperr.Internal, "deleting task", err)
	}

	payload := model.TaskDeleted{TaskID: task.ID}
	s.recorder.Record(ctx, actor.ID, model.ActionDeleteTask, activity.TaskTarget(task.ID),
		map[string]any{"title": task.Title})
	s.broadcast(notify.EventTaskDeleted, payload, task)

	return payload, nil
}

// AddComment appends a comment to a task the actor may read and returns
// the task with all its comments.
func (s *Service) AddComment(ctx context.Context, id, text string) (model.TaskView, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return model.TaskView{}, err
	}

	task, err := s.load(ctx, id)
	if err != nil {
		return model.TaskView{}, err
	}

	if err := policy.CanRead(actor, task).Err(); err != nil {
		return model.TaskView{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return model.TaskView{}, apperr.Invalidf("Comment text is required")
	}

	comment := model.Comment{
		ID:        model.NewID(),
		TaskID:    task.ID,
		AuthorID:  actor.ID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddComment(ctx, comment); err != nil {
		return model.TaskView{}, apperr.Wrap(apperr.Internal, "adding comment", err)
	}

	comments, err := s.store.GetComments(ctx, task.ID)
	if err != nil {
		return model.TaskView{}, apperr.Wrap(apperr.Internal, "loading comments", err)
	}
	view, err := s.compose(ctx, task, comments)
	if err != nil {
		return model.TaskView{}, err
	}

	s.recorder.Record(ctx, actor.ID, model.ActionComment, activity.TaskTarget(task.ID),
		map[string]any{"text": text})
	s.broadcast(notify.EventTaskUpdated, view, task)

	return view, nil
}

func requireActor(ctx context.Context) (identity.Actor, error) {
	actor, ok := identity.ActorFrom(ctx)
	if !ok || actor.ID == "" {
		return identity.Actor{}, apperr.Unauthenticatedf("Unauthorized request")
	}
	return actor, nil
}

// load validates the id and fetches the task.
func (s *Service) load(ctx context.Context, id string) (model.Task, error) {
	if !model.ValidID(id) {
		return model.Task{}, apperr.Invalidf("Invalid task ID")
	}
	task, err := s.store.GetTaskByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Task{}, apperr.NotFoundf("Task not found")
	}
	if err != nil {
		return model.Task{}, apperr.Wrap(apperr.Internal, "loading task", err)
	}
	return *task, nil
}

// requireAssignee checks that a newly assigned user exists.
func (s *Service) requireAssignee(ctx context.Context, assignedTo model.Optional[string]) error {
	if !assignedTo.HasValue() {
		return nil
	}
	exists, err := s.store.UserExists(ctx, assignedTo.Value)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "checking assignee", err)
	}
	if !exists {
		return apperr.Invalidf("Assigned user does not exist")
	}
	return nil
}

// apply copies the present fields of an already validated change set onto
// the task.
func apply(task *model.Task, c model.TaskChanges) {
	if c.Title.HasValue() {
		task.Title = strings.TrimSpace(c.Title.Value)
	}
	if c.Description.HasValue() {
		task.Description = strings.TrimSpace(c.Description.Value)
	}
	if c.Status.HasValue() {
		task.Status = c.Status.Value
	}
	if c.Priority.HasValue() {
		task.Priority = c.Priority.Value
	}
	if c.Paramount.HasValue() {
		task.Paramount = c.Paramount.Value
	}
	if c.DueDate.Set {
		if c.DueDate.Null {
			task.DueDate = nil
		} else {
			due, _ := model.ParseDueDate(c.DueDate.Value)
			task.DueDate = &due
		}
	}
	if c.AssignedTo.Set {
		if c.AssignedTo.Null {
			task.AssignedTo = nil
		} else {
			assignee := c.AssignedTo.Value
			task.AssignedTo = &assignee
		}
	}
}

// rooms returns the rooms an event about task goes to: the creator, the
// assignee when set, and the Admin room.
func rooms(task model.Task) []string {
	out := []string{task.CreatedBy}
	if task.AssignedTo != nil && *task.AssignedTo != task.CreatedBy {
		out = append(out, *task.AssignedTo)
	}
	return append(out, notify.AdminRoom)
}

// broadcast queues the event on the dispatcher, which delivers events in
// the order mutations committed. Failures are logged there and never reach
// the caller.
func (s *Service) broadcast(event string, payload any, task model.Task) {
	targets := rooms(task)
	send := func(context.Context) error {
		_, err := s.broadcaster.Broadcast(event, payload, targets...)
		return err
	}
	if s.dispatcher == nil {
		if err := send(context.Background()); err != nil {
			s.logger.Error("broadcast failed", "event", event, "task_id", task.ID, "error", err)
		}
		return
	}
	s.dispatcher.Go("broadcast "+event, send)
}

func normalizePaging(page, limit int) (int, int, error) {
	if page < 0 || limit < 0 {
		return 0, 0, apperr.Invalidf("page and limit must be positive")
	}
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit, nil
}
