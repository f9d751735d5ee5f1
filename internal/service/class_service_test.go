package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
)

type stubClassRepo struct {
	classes []models.Class
	err     error
}

func (s stubClassRepo) List(context.Context) ([]models.Class, error) {
	return s.classes, s.err
}

func TestClassServiceList(t *testing.T) {
	svc := NewClassService(stubClassRepo{}, nil)
	classes, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, classes)

	svc = NewClassService(stubClassRepo{classes: []models.Class{{Name: "5", Level: 5}}}, nil)
	classes, err = svc.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5", classes[0].Name)

	svc = NewClassService(stubClassRepo{err: errors.New("conn reset")}, nil)
	_, err = svc.List(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrInfrastructure))
}
