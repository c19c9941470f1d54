package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-health-tracker/internal/airquality"
	"github.com/i474232898/air-health-tracker/internal/chart"
)

var validate = validator.New()

// Deps bundles what the handlers need.
type Deps struct {
	Service *airquality.Service
	Asthma  airquality.AsthmaSource

	// Defaults applied to asthma queries.
	AsthmaMeasureID string
	StateFIPS       string

	// CollectTimeout bounds a pass triggered over HTTP.
	CollectTimeout time.Duration
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	service := deps.Service
	v1 := app.Group("/api/v1")

	v1.Get("/locations", func(c *fiber.Ctx) error {
		return c.JSON(service.Locations())
	})

	v1.Get("/locations/:zip/current", func(c *fiber.Ctx) error {
		loc, err := lookupLocation(c, service)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
		defer cancel()

		reading, err := service.Provider().Fetch(ctx, loc)
		if err != nil {
			return fiber.NewError(fiber.StatusGatewayTimeout, "failed to fetch current reading")
		}
		return c.JSON(reading)
	})

	v1.Get("/trends/:zip", func(c *fiber.Ctx) error {
		var q zipParam
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(fiber.Map{
			"location": q.Zip,
			"points":   service.Trend(q.Zip),
		})
	})

	v1.Get("/trends/:zip/chart", func(c *fiber.Ctx) error {
		loc, err := lookupLocation(c, service)
		if err != nil {
			return err
		}

		img, err := chart.RenderTrend(loc.Name, service.Trend(loc.ID))
		if err != nil {
			if errors.Is(err, chart.ErrNotEnoughPoints) {
				return fiber.NewError(fiber.StatusNotFound, "not enough history to draw a trend")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to render trend chart")
		}

		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(img)
	})

	v1.Get("/history/:date", func(c *fiber.Ctx) error {
		q := dateParam{Date: c.Params("date")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snaps, ok := service.Snapshots(q.Date)
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no snapshots stored for requested date")
		}
		return c.JSON(fiber.Map{
			"date":      q.Date,
			"snapshots": snaps,
		})
	})

	v1.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(service.Status())
	})

	v1.Post("/collections", func(c *fiber.Ctx) error {
		force := c.QueryBool("force", false)

		timeout := deps.CollectTimeout
		if timeout <= 0 {
			timeout = 30 * time.Minute
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()

		result, ran, err := service.RunIfDue(ctx, force)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "collection pass interrupted")
		}
		status := fiber.StatusOK
		if ran {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{
			"ran":    ran,
			"result": result,
			"status": service.Status(),
		})
	})

	v1.Get("/asthma", func(c *fiber.Ctx) error {
		if deps.Asthma == nil {
			return fiber.NewError(fiber.StatusNotImplemented, "asthma statistics are not configured")
		}

		var q asthmaQuery
		if err := c.QueryParser(&q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		measure := q.Measure
		if measure == "" {
			measure = deps.AsthmaMeasureID
		}

		stats, err := deps.Asthma.Prevalence(c.UserContext(), airquality.AsthmaQuery{
			MeasureID:    measure,
			Jurisdiction: deps.StateFIPS,
			FromYear:     q.From,
			ToYear:       q.To,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusGatewayTimeout, "failed to fetch asthma statistics")
		}
		return c.JSON(stats)
	})
}

// zipParam is the :zip path parameter.
type zipParam struct {
	Zip string `validate:"required,numeric,len=5"`
}

func (z *zipParam) bind(c *fiber.Ctx) error {
	z.Zip = c.Params("zip")
	return validate.Struct(z)
}

func lookupLocation(c *fiber.Ctx, service *airquality.Service) (airquality.Location, error) {
	var q zipParam
	if err := q.bind(c); err != nil {
		return airquality.Location{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	for _, loc := range service.Locations() {
		if loc.ID == q.Zip {
			return loc, nil
		}
	}
	return airquality.Location{}, fiber.NewError(fiber.StatusNotFound, "unknown location")
}

type dateParam struct {
	Date string `validate:"required,datetime=2006-01-02"`
}

// asthmaQuery holds query parameters for the asthma endpoint.
type asthmaQuery struct {
	Measure string `query:"measure" validate:"omitempty,numeric"`
	From    int    `query:"from" validate:"required,gte=2000,lte=2100"`
	To      int    `query:"to" validate:"required,gte=2000,lte=2100,gtefield=From"`
}
