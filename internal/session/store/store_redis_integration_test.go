//go:build integration

package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/genialityco/gen-live-web-sub000/internal/session/models"
	"github.com/genialityco/gen-live-web-sub000/internal/session/store"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
	"github.com/genialityco/gen-live-web-sub000/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.Redis
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = store.NewRedis(s.redis.Client.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestCreateOnce() {
	ctx := context.Background()
	device := id.NewDeviceID()
	binding := &models.Binding{DeviceID: device, SessionID: "s1", Emails: []string{"a@x.com"}, ExpiresAt: time.Now().Add(time.Hour)}

	s.Require().NoError(s.store.Create(ctx, binding))
	s.ErrorIs(s.store.Create(ctx, binding), sentinel.ErrConflict)

	got, err := s.store.Get(ctx, device)
	s.Require().NoError(err)
	s.Equal(id.SessionID("s1"), got.SessionID)

	ttl, err := s.redis.Client.TTL(ctx, "genlive:device:"+device.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}

// Concurrent associations on one device all land.
func (s *RedisStoreSuite) TestConcurrentAddEmail() {
	ctx := context.Background()
	device := id.NewDeviceID()
	s.Require().NoError(s.store.Create(ctx, &models.Binding{DeviceID: device, SessionID: "s1"}))

	const goroutines = 8
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.store.AddEmail(ctx, device, fmt.Sprintf("u%d@x.com", i))
		}(i)
	}
	wg.Wait()

	got, err := s.store.Get(ctx, device)
	s.Require().NoError(err)
	s.Len(got.Emails, goroutines)
}

func (s *RedisStoreSuite) TestMissing() {
	_, err := s.store.Get(context.Background(), id.NewDeviceID())
	s.ErrorIs(err, store.ErrNotFound)
	_, err = s.store.AddEmail(context.Background(), id.NewDeviceID(), "a@x.com")
	s.ErrorIs(err, store.ErrNotFound)
}
