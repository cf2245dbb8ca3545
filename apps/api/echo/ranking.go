package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core/points"
)

const defaultLeaderboardLimit = 20

type rankingApi struct {
	svc      *points.Service
	validate *validator.Validate
}

func registerRankingAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *points.Service, validate *validator.Validate) {
	api := rankingApi{svc: svc, validate: validate}

	rg := g.Group("/rankings", jwt)
	rg.GET("", api.leaderboard)
	rg.GET("/me", api.me)
	rg.GET("/config", api.getConfig, adminMiddleware())
	rg.PUT("/config", api.updateConfig, adminMiddleware())
}

func (api *rankingApi) leaderboard(ctx echo.Context) error {
	limit := defaultLeaderboardLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	ranks, err := api.svc.Leaderboard(ctx.Request().Context(), limit)
	if err != nil {
		return errors.Wrap(err, "querying leaderboard")
	}
	if ranks == nil {
		ranks = []points.RankEntry{}
	}
	return ctx.JSON(http.StatusOK, ranks)
}

func (api *rankingApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	total, err := api.svc.GetUserPoints(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting user points")
	}
	history, err := api.svc.History(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying points history")
	}
	if history == nil {
		history = []points.Entry{}
	}
	return ctx.JSON(http.StatusOK, MyPointsResponse{Points: total, History: history})
}

func (api *rankingApi) getConfig(ctx echo.Context) error {
	cfg, err := api.svc.GetConfig(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting ranking config")
	}
	return ctx.JSON(http.StatusOK, cfg)
}

func (api *rankingApi) updateConfig(ctx echo.Context) error {
	var data points.Config
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Config")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	cfg, err := api.svc.UpdateConfig(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "updating ranking config")
	}
	return ctx.JSON(http.StatusOK, cfg)
}

type MyPointsResponse struct {
	Points  int            `json:"points"`
	History []points.Entry `json:"history"`
}
