package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/points"
	"github.com/trezcool/elimu/core/user"
)

type courseApi struct {
	svc      *course.Service
	points   *points.Service
	users    user.Service
	validate *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *course.Service,
	pointsSvc *points.Service,
	userSvc user.Service,
	validate *validator.Validate,
) {
	api := courseApi{
		svc:      svc,
		points:   pointsSvc,
		users:    userSvc,
		validate: validate,
	}

	cg := g.Group("/courses", jwt)
	cg.GET("", api.query)
	cg.POST("", api.create, adminMiddleware())
	cg.GET("/favorites", api.queryFavorites)
	cg.DELETE("/lessons", api.destroyLessons, adminMiddleware())
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update, adminMiddleware())
	cg.DELETE("/:id", api.destroy, adminMiddleware())
	cg.POST("/:id/lessons", api.addLesson, adminMiddleware())
	cg.GET("/:id/progress", api.progress)
	cg.POST("/:id/favorite", api.favorite)
	cg.DELETE("/:id/favorite", api.unfavorite)

	rg := g.Group("/resources", jwt)
	rg.GET("", api.queryResources)
	rg.POST("", api.createResource, adminMiddleware())
	rg.GET("/:id", api.retrieveResource)
	rg.POST("/:id/access", api.accessResource)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()

	// learners only ever see the published catalog
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsAdmin {
		published := true
		filter.IsPublished = &published
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting course")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !crs.IsPublished && !claims.IsAdmin {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}

	orig, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting course")
	}
	if err := data.Validate(orig, api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) addLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lsn, err := api.svc.AddLesson(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

func (api *courseApi) destroyLessons(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.DeleteLessons(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting lessons")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// progress returns the IDs of the lessons the user has completed in a course.
func (api *courseApi) progress(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ids, err := api.svc.CompletedLessonIDs(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying completed lessons")
	}
	if ids == nil {
		ids = []string{}
	}
	return ctx.JSON(http.StatusOK, ProgressResponse{CompletedLessonIDs: ids})
}

func (api *courseApi) favorite(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err := api.svc.Favorite(ctx.Request().Context(), claims.Subject, ctx.Param("id")); err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "adding favorite")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) unfavorite(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if err := api.svc.Unfavorite(ctx.Request().Context(), claims.Subject, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing favorite")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) queryFavorites(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	ids, err := api.svc.FavoriteCourseIDs(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying favorites")
	}
	if ids == nil {
		ids = []string{}
	}
	return ctx.JSON(http.StatusOK, FavoritesResponse{CourseIDs: ids})
}

func (api *courseApi) createResource(ctx echo.Context) error {
	var data course.NewResource
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResource")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.CreateResource(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating resource")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *courseApi) queryResources(ctx echo.Context) error {
	resources, err := api.svc.QueryResources(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying resources")
	}
	if resources == nil {
		resources = []course.Resource{}
	}
	return ctx.JSON(http.StatusOK, resources)
}

func (api *courseApi) retrieveResource(ctx echo.Context) error {
	res, err := api.svc.GetResource(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrResourceNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting resource")
	}
	return ctx.JSON(http.StatusOK, res)
}

// accessResource records a resource access: the first one per user earns the
// configured points, later ones are no-ops.
func (api *courseApi) accessResource(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	res, err := api.svc.GetResource(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == course.ErrResourceNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting resource")
	}

	awarded, err := api.points.AwardResourceAccess(ctx.Request().Context(), claims.Subject, res.ID)
	if err != nil {
		return errors.Wrap(err, "awarding resource access points")
	}
	return ctx.JSON(http.StatusOK, ResourceAccessResponse{Resource: res, AwardedPoints: awarded})
}

type (
	ProgressResponse struct {
		CompletedLessonIDs []string `json:"completed_lesson_ids"`
	}

	FavoritesResponse struct {
		CourseIDs []string `json:"course_ids"`
	}

	ResourceAccessResponse struct {
		Resource      course.Resource `json:"resource"`
		AwardedPoints int             `json:"awarded_points"`
	}
)
