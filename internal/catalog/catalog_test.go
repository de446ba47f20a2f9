package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerHub/internal/database"
	"careerHub/internal/database/dbtest"
)

func TestResolveCourse(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := NewService(db)

	direct := database.Course{Name: "Cloud Foundations"}
	byRole := database.Course{Name: "Data Analyst"}
	byTitle := database.Course{Name: "Backend Engineer"}
	require.NoError(t, db.Create(&direct).Error)
	require.NoError(t, db.Create(&byRole).Error)
	require.NoError(t, db.Create(&byTitle).Error)

	t.Run("direct reference wins", func(t *testing.T) {
		job := &database.Job{Title: "Backend Engineer", Role: "data analyst", CourseID: &direct.ID}
		course, err := svc.ResolveCourse(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, direct.ID, course.ID)
	})

	t.Run("role matched case-insensitively", func(t *testing.T) {
		job := &database.Job{Title: "Backend Engineer", Role: "DATA ANALYST"}
		course, err := svc.ResolveCourse(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, byRole.ID, course.ID)
	})

	t.Run("title as last resort", func(t *testing.T) {
		job := &database.Job{Title: "backend engineer", Role: "Unmatched"}
		course, err := svc.ResolveCourse(ctx, job)
		require.NoError(t, err)
		assert.Equal(t, byTitle.ID, course.ID)
	})

	t.Run("nothing matches", func(t *testing.T) {
		job := &database.Job{Title: "Chef", Role: "Cook"}
		_, err := svc.ResolveCourse(ctx, job)
		assert.True(t, errors.Is(err, ErrCourseNotResolved))
	})
}

func TestFindJobForCourse(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := NewService(db)

	analyst := database.Course{Name: "Data Analyst"}
	tester := database.Course{Name: "QA Tester"}
	designer := database.Course{Name: "UX Designer"}
	orphan := database.Course{Name: "Pastry"}
	for _, c := range []*database.Course{&analyst, &tester, &designer, &orphan} {
		require.NoError(t, db.Create(c).Error)
	}

	// ids ascend in creation order, so the lowest id is never the linked job
	titleMatch := database.Job{Title: "Data Analyst", Company: "A", Role: "reporting"}
	roleMatch := database.Job{Title: "Insights Associate", Company: "B", Role: "DATA ANALYST"}
	linked := database.Job{Title: "Junior Analyst", Company: "C", Role: "bi", CourseID: &analyst.ID}
	testerTitle := database.Job{Title: "qa tester", Company: "D", Role: "quality"}
	testerRole := database.Job{Title: "Automation Engineer", Company: "E", Role: "QA Tester"}
	designerTitle := database.Job{Title: "UX Designer", Company: "F", Role: "product"}
	for _, j := range []*database.Job{&titleMatch, &roleMatch, &linked, &testerTitle, &testerRole, &designerTitle} {
		require.NoError(t, db.Create(j).Error)
	}

	cases := []struct {
		name   string
		course database.Course
		want   uint
	}{
		{name: "linked course wins", course: analyst, want: linked.ID},
		{name: "role before title", course: tester, want: testerRole.ID},
		{name: "title as last resort", course: designer, want: designerTitle.ID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job, err := svc.FindJobForCourse(ctx, &tc.course)
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, tc.want, job.ID)
		})
	}

	t.Run("no job", func(t *testing.T) {
		job, err := svc.FindJobForCourse(ctx, &orphan)
		require.NoError(t, err)
		assert.Nil(t, job)
	})
}

func TestSearchJobs(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := NewService(db)

	jobs := []database.Job{
		{Title: "Go Developer", Skills: "Go, SQL", Location: "Bengaluru", SalaryRange: "10-15 LPA", Role: "Backend"},
		{Title: "Data Analyst", Skills: "Python, SQL", Location: "Pune", SalaryRange: "6-8 LPA", Role: "Analytics"},
		{Title: "Frontend Developer", Skills: "React", Location: "bengaluru", SalaryRange: "8-12 LPA", Role: "Frontend"},
	}
	require.NoError(t, db.Create(&jobs).Error)

	got, err := svc.SearchJobs(ctx, JobFilter{Keyword: "sql"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.SearchJobs(ctx, JobFilter{Location: "BENGALURU"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.SearchJobs(ctx, JobFilter{Keyword: "developer", Course: "react"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Frontend Developer", got[0].Title)

	got, err = svc.SearchJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCourseContent_PicksEarliestSession(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := NewService(db)

	course := database.Course{Name: "Go"}
	require.NoError(t, db.Create(&course).Error)
	later := database.PlacementSession{CourseID: course.ID, Title: "later", SessionDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	sooner := database.PlacementSession{CourseID: course.ID, Title: "sooner", SessionDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, db.Create(&later).Error)
	require.NoError(t, db.Create(&sooner).Error)
	require.NoError(t, db.Create(&database.Topic{CourseID: course.ID, Title: "Goroutines"}).Error)

	content, err := svc.CourseContent(ctx, course.ID)
	require.NoError(t, err)
	require.NotNil(t, content.PlacementSession)
	assert.Equal(t, "sooner", content.PlacementSession.Title)
	assert.Len(t, content.Topics, 1)
	assert.Empty(t, content.Videos)
}

func TestJobAndPlanListHelpers(t *testing.T) {
	job := database.Job{Responsibilities: "Write code\n\n Review PRs \n", Skills: "Go, , SQL ,"}
	assert.Equal(t, []string{"Write code", "Review PRs"}, job.ResponsibilityList())
	assert.Equal(t, []string{"Go", "SQL"}, job.SkillList())

	plan := database.Plan{Features: "Videos,Interview kit, Placement"}
	assert.Equal(t, []string{"Videos", "Interview kit", "Placement"}, plan.FeatureList())
}
