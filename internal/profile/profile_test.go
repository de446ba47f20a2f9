package profile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerHub/internal/database"
	"careerHub/internal/database/dbtest"
	"careerHub/internal/entitlement"
)

func newService(t *testing.T) (*Service, uint) {
	t.Helper()
	db := dbtest.Open(t)
	user := database.User{Email: "ravi@example.com"}
	require.NoError(t, db.Create(&user).Error)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	return NewService(db, entitlement.NewService(db, func() time.Time { return now })), user.ID
}

func TestNewSection(t *testing.T) {
	for _, kind := range []string{"personal", "education", "skills", "projects", "career", "resume", " Career "} {
		section, err := NewSection(kind)
		require.NoError(t, err, kind)
		assert.Equal(t, Kind(strings.ToLower(strings.TrimSpace(kind))), section.Kind())
	}

	_, err := NewSection("plan")
	assert.ErrorIs(t, err, ErrUnknownSection)
	_, err = NewSection("")
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestUpdate_OnlyTouchesSectionColumns(t *testing.T) {
	svc, userID := newService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, userID, &SkillsSection{Skills: "go, , sql ,docker"}, nil)
	require.NoError(t, err)

	res, err := svc.Update(ctx, userID, &PersonalSection{FullName: " Ravi ", Mobile: "9876543210", City: "Pune"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", res.Profile.FullName)

	dash, err := svc.Dashboard(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "go, sql, docker", dash.Profile.Skills)
	require.NotNil(t, dash.Profile.Mobile)
	assert.Equal(t, "9876543210", *dash.Profile.Mobile)
	assert.Equal(t, "Pune", dash.Profile.City)
}

func TestUpdate_DuplicateMobile(t *testing.T) {
	svc, userID := newService(t)
	ctx := context.Background()

	other := database.User{Email: "other@example.com"}
	require.NoError(t, svc.db.Create(&other).Error)
	mobile := "9999999999"
	require.NoError(t, svc.db.Create(&database.Profile{UserID: other.ID, Mobile: &mobile}).Error)

	_, err := svc.Update(ctx, userID, &PersonalSection{FullName: "Ravi", Mobile: mobile}, nil)
	assert.ErrorIs(t, err, ErrDuplicateMobile)

	_, err = svc.Update(ctx, userID, &PersonalSection{FullName: "Ravi"}, nil)
	assert.NoError(t, err)
}

func TestUpdate_InvalidFields(t *testing.T) {
	svc, userID := newService(t)
	ctx := context.Background()

	cases := map[string]Section{
		"year not a number": &EducationSection{PassingYear: "20x0"},
		"year out of range": &EducationSection{PassingYear: "1800"},
		"percentage":        &EducationSection{Percentage: "120"},
		"joining date":      &CareerSection{JoiningDate: "01/02/2024"},
	}
	for name, section := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Update(ctx, userID, section, nil)
			assert.ErrorIs(t, err, ErrInvalidField)
		})
	}
}

func TestUpdate_FilesAndReplacement(t *testing.T) {
	svc, userID := newService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, userID, &PersonalSection{}, map[string]StoredFile{FileResume: {Key: "x"}})
	assert.ErrorIs(t, err, ErrFileNotAllowed)

	first, err := svc.Update(ctx, userID, &ResumeSection{}, map[string]StoredFile{
		FileResume:       {Key: "profiles/1/resume/a.pdf"},
		FileProfileImage: {Key: "profiles/1/profile_image/a.png", ThumbnailKey: "profiles/1/profile_image/a_thumb.jpg"},
	})
	require.NoError(t, err)
	assert.Empty(t, first.Replaced)
	assert.Equal(t, "profiles/1/profile_image/a_thumb.jpg", first.Profile.ThumbnailKey)

	second, err := svc.Update(ctx, userID, &ResumeSection{}, map[string]StoredFile{
		FileResume: {Key: "profiles/1/resume/b.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"profiles/1/resume/a.pdf"}, second.Replaced)
	assert.Equal(t, "profiles/1/profile_image/a.png", second.Profile.ProfileImageKey)
}

func TestCompletionPercentage(t *testing.T) {
	assert.Equal(t, 0, CompletionPercentage(nil))
	assert.Equal(t, 0, CompletionPercentage(&database.Profile{}))

	mobile := "9876543210"
	half := &database.Profile{
		FullName: "A", Email: "a@example.com", Mobile: &mobile, City: "Pune",
		Degree: "BE", College: "COEP", Specialization: "CS",
	}
	assert.Equal(t, 50, CompletionPercentage(half))

	full := *half
	full.Skills, full.Software = "go", "vim"
	full.ProjectTitle, full.ProjectDetails = "p", "d"
	full.CompanyName, full.JobTitle = "c", "j"
	full.ResumeKey = "profiles/1/resume/a.pdf"
	assert.Equal(t, 100, CompletionPercentage(&full))
}

func TestValidateFile(t *testing.T) {
	assert.NoError(t, ValidateFile(FileResume, "cv.PDF", 1024))
	assert.ErrorIs(t, ValidateFile(FileResume, "cv.exe", 1024), ErrFileNotAllowed)
	assert.ErrorIs(t, ValidateFile(FileProfileImage, "me.png", MaxUploadBytes+1), ErrFileNotAllowed)
	assert.ErrorIs(t, ValidateFile("avatar", "me.png", 10), ErrFileNotAllowed)
}

func TestObjectKeys(t *testing.T) {
	key := ObjectKey(StoragePrefix, 7, FileProfileImage, "Me.PNG")
	assert.True(t, strings.HasPrefix(key, "profiles/7/profile_image/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.True(t, strings.HasSuffix(ThumbnailKey(key), "_thumb.jpg"))

	assert.True(t, OwnsKey(7, key, StoragePrefix))
	assert.False(t, OwnsKey(8, key, StoragePrefix))
	assert.False(t, OwnsKey(7, "profiles/7/../8/resume/a.pdf", StoragePrefix))
	assert.False(t, OwnsKey(7, "", StoragePrefix))
}
