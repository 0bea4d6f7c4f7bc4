package firestore

import (
	"context"
	"sort"
	"strings"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"inbox-service/internal/models"
	"inbox-service/internal/repositories"
)

const (
	usersCollection   = "users"
	followsCollection = "follows"
)

type userDoc struct {
	Name         string `firestore:"name"`
	ProfileImage string `firestore:"profileImage"`
	FCMToken     string `firestore:"fcmToken"`
}

func (d userDoc) toModel(id string) models.UserProfile {
	return models.UserProfile{ID: id, DisplayName: d.Name, AvatarURL: d.ProfileImage, DeviceToken: d.FCMToken}
}

// UserRepo reads profiles and follow edges from Firestore.
type UserRepo struct {
	client *fs.Client
}

func NewUserRepo(client *fs.Client) *UserRepo {
	return &UserRepo{client: client}
}

func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.UserProfile, error) {
	snap, err := r.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return models.UserProfile{}, repositories.ErrUserNotFound
	}
	if err != nil {
		return models.UserProfile{}, wrapFS(err, "get user")
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return models.UserProfile{}, err
	}
	return doc.toModel(snap.Ref.ID), nil
}

// BulkUsers skips ids that have no profile document.
func (r *UserRepo) BulkUsers(ctx context.Context, ids []string) ([]models.UserProfile, error) {
	if len(ids) == 0 {
		return []models.UserProfile{}, nil
	}
	refs := make([]*fs.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, r.client.Collection(usersCollection).Doc(id))
	}
	snaps, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, wrapFS(err, "bulk users")
	}
	users := make([]models.UserProfile, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc userDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		users = append(users, doc.toModel(snap.Ref.ID))
	}
	return users, nil
}

func (r *UserRepo) ListFollowed(ctx context.Context, userID string) ([]models.UserProfile, error) {
	snaps, err := r.client.Collection(followsCollection).
		Where("followerId", "==", userID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapFS(err, "list follows")
	}
	ids := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		if followed, ok := snap.Data()["followedId"].(string); ok && followed != "" {
			ids = append(ids, followed)
		}
	}
	users, err := r.BulkUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Name()) < strings.ToLower(users[j].Name())
	})
	return users, nil
}
