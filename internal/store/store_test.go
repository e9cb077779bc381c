package store_test

import (
	"context"
	"errors"
	"testing"

	"taskmanager/internal/model"
	"taskmanager/internal/store"
	"taskmanager/internal/store/storetest"

	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, users *store.UserStore, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Password: "hash"}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func TestUserStore_DuplicateEmail(t *testing.T) {
	db := storetest.New(t)
	users := store.NewUserStore(db)
	newUser(t, users, "a@x.com")

	err := users.Create(context.Background(), &model.User{Email: "a@x.com", Password: "hash"})
	require.ErrorIs(t, err, store.ErrDuplicate)

	taken, err := users.EmailTaken(context.Background(), "a@x.com", 0)
	require.NoError(t, err)
	require.True(t, taken)
}

func TestUserStore_Tokens(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	users := store.NewUserStore(db)
	u := newUser(t, users, "a@x.com")

	require.NoError(t, users.AddToken(ctx, u.ID, "t1"))
	require.NoError(t, users.AddToken(ctx, u.ID, "t2"))
	require.NoError(t, users.AddToken(ctx, u.ID, "t3"))

	tokens, err := users.ListTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"t1", "t2", "t3"}, tokens)

	found, err := users.FindByIDAndToken(ctx, u.ID, "t2")
	require.NoError(t, err)
	require.Equal(t, u.ID, found.ID)

	require.NoError(t, users.RemoveToken(ctx, u.ID, "t2"))
	require.NoError(t, users.RemoveToken(ctx, u.ID, "missing"))
	tokens, err = users.ListTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"t1", "t3"}, tokens)

	_, err = users.FindByIDAndToken(ctx, u.ID, "t2")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, users.RemoveAllTokens(ctx, u.ID))
	tokens, err = users.ListTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, tokens)
}

func TestUserStore_Avatar(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	users := store.NewUserStore(db)
	u := newUser(t, users, "a@x.com")

	_, err := users.GetAvatar(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, users.SetAvatar(ctx, u.ID, []byte{1, 2, 3}))
	data, err := users.GetAvatar(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, data)

	require.NoError(t, users.SetAvatar(ctx, u.ID, nil))
	_, err = users.GetAvatar(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = users.GetAvatar(ctx, 9999)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTaskStore_OwnerScoped(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	users := store.NewUserStore(db)
	tasks := store.NewTaskStore(db)
	alice := newUser(t, users, "alice@x.com")
	bob := newUser(t, users, "bob@x.com")

	task := &model.Task{Title: "t", Comment: "c", OwnerID: alice.ID}
	require.NoError(t, tasks.Create(ctx, task))
	require.False(t, task.Done)

	_, err := tasks.Get(ctx, bob.ID, task.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = tasks.Update(ctx, bob.ID, task.ID, map[string]interface{}{"task": "hijack"})
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = tasks.Delete(ctx, bob.ID, task.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := tasks.Get(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	require.Equal(t, "t", got.Title)

	updated, err := tasks.Update(ctx, alice.ID, task.ID, map[string]interface{}{"comment": "new"})
	require.NoError(t, err)
	require.Equal(t, "new", updated.Comment)
	require.Equal(t, "t", updated.Title)

	deleted, err := tasks.Delete(ctx, alice.ID, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, deleted.ID)

	_, err = tasks.Get(ctx, alice.ID, task.ID)
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestTaskStore_List(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	users := store.NewUserStore(db)
	tasks := store.NewTaskStore(db)
	alice := newUser(t, users, "alice@x.com")
	bob := newUser(t, users, "bob@x.com")

	for _, title := range []string{"b", "a", "d", "c"} {
		require.NoError(t, tasks.Create(ctx, &model.Task{Title: title, Comment: "c", OwnerID: alice.ID}))
	}
	require.NoError(t, tasks.Create(ctx, &model.Task{Title: "bob", Comment: "c", OwnerID: bob.ID}))

	all, err := tasks.List(ctx, alice.ID, store.TaskQuery{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	_, err = tasks.Update(ctx, alice.ID, all[0].ID, map[string]interface{}{"done": true})
	require.NoError(t, err)
	_, err = tasks.Update(ctx, alice.ID, all[2].ID, map[string]interface{}{"done": true})
	require.NoError(t, err)

	done := true
	completed, err := tasks.List(ctx, alice.ID, store.TaskQuery{Done: &done})
	require.NoError(t, err)
	require.Len(t, completed, 2)
	for _, task := range completed {
		require.True(t, task.Done)
	}

	sorted, err := tasks.List(ctx, alice.ID, store.TaskQuery{SortBy: "task", Desc: true})
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c", "b", "a"}, titles(sorted))

	page, err := tasks.List(ctx, alice.ID, store.TaskQuery{SortBy: "task", Limit: 2, Skip: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, titles(page))

	rest, err := tasks.List(ctx, alice.ID, store.TaskQuery{SortBy: "task", Skip: 3})
	require.NoError(t, err)
	require.Equal(t, []string{"d"}, titles(rest))
}

func TestUserStore_DeleteCascade(t *testing.T) {
	ctx := context.Background()
	db := storetest.New(t)
	users := store.NewUserStore(db)
	tasks := store.NewTaskStore(db)
	alice := newUser(t, users, "alice@x.com")
	bob := newUser(t, users, "bob@x.com")

	require.NoError(t, users.AddToken(ctx, alice.ID, "tok"))
	require.NoError(t, tasks.Create(ctx, &model.Task{Title: "a", Comment: "c", OwnerID: alice.ID}))
	require.NoError(t, tasks.Create(ctx, &model.Task{Title: "b", Comment: "c", OwnerID: bob.ID}))

	require.NoError(t, users.DeleteCascade(ctx, alice.ID))

	left, err := tasks.List(ctx, alice.ID, store.TaskQuery{})
	require.NoError(t, err)
	require.Empty(t, left)

	tokens, err := users.ListTokens(ctx, alice.ID)
	require.NoError(t, err)
	require.Empty(t, tokens)

	_, err = users.FindByID(ctx, alice.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	bobs, err := tasks.List(ctx, bob.ID, store.TaskQuery{})
	require.NoError(t, err)
	require.Len(t, bobs, 1)

	require.ErrorIs(t, users.DeleteCascade(ctx, alice.ID), store.ErrNotFound)
}

func titles(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}
