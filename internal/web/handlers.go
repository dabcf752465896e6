package web

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"gocoax-monitor/internal/configflow"
	"gocoax-monitor/internal/db"
	"gocoax-monitor/internal/models"
	"gocoax-monitor/internal/poller"
	"gocoax-monitor/internal/sensor"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/template/html/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

//go:embed templates/*.html
var templateFS embed.FS

// NewEngine returns the template engine over the embedded templates.
func NewEngine() *html.Engine {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	engine.AddFunc("ago", func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return time.Since(t).Truncate(time.Second).String() + " ago"
	})
	return engine
}

type Deps struct {
	DB           *gorm.DB
	Poller       *poller.Poller
	Flow         *configflow.Flow
	Gatherer     prometheus.Gatherer
	SetupTimeout time.Duration
}

type DeviceView struct {
	ID        uint                  `json:"id"`
	EntryID   string                `json:"entry_id"`
	Title     string                `json:"title"`
	Host      string                `json:"host"`
	Available bool                  `json:"available"`
	LastError string                `json:"last_error,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
	Device    sensor.DeviceRegistry `json:"device"`
	Link      *models.LinkState     `json:"link,omitempty"`
	Sensors   []sensor.State        `json:"sensors"`
}

func deviceView(gdb *gorm.DB, rt *poller.Runtime) DeviceView {
	v := DeviceView{
		ID:        rt.Entry.ID,
		EntryID:   rt.Entry.EntryID,
		Title:     rt.Entry.Title,
		Host:      rt.Entry.Host,
		Available: rt.Coordinator.Snapshot().Available,
		Device:    sensor.DeviceInfo(rt.Entry.Host),
		Sensors:   rt.States(),
	}
	if err := rt.Coordinator.LastError(); err != nil {
		v.LastError = err.Error()
	}
	if data := rt.Coordinator.Data(); data != nil {
		v.UpdatedAt = data.UpdatedAt
	}
	if link, err := db.LinkStateOf(gdb, rt.Entry.ID); err == nil {
		v.Link = link
	}
	return v
}

func SetupRoutes(app *fiber.App, d Deps) {
	if d.SetupTimeout <= 0 {
		d.SetupTimeout = 30 * time.Second
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	deviceViews := func() []DeviceView {
		var views []DeviceView
		for _, rt := range d.Poller.Runtimes() {
			views = append(views, deviceView(d.DB, rt))
		}
		return views
	}

	renderAdmin := func(c *fiber.Ctx, res configflow.Result) error {
		entries, err := db.ListDevices(d.DB)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Render("admin", fiber.Map{
			"Entries": entries,
			"Flow":    res,
		})
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Render("index", fiber.Map{
			"Devices": deviceViews(),
		})
	})

	// Config flow form
	app.Get("/admin", func(c *fiber.Ctx) error {
		res, err := d.Flow.StepUser(c.UserContext(), nil)
		if err != nil {
			return err
		}
		return renderAdmin(c, res)
	})

	app.Post("/admin/add", func(c *fiber.Ctx) error {
		in := &configflow.UserInput{
			Host:     c.FormValue("host"),
			Username: c.FormValue("username"),
			Password: c.FormValue("password"),
			Auth:     c.FormValue("auth"),
		}
		res, err := d.Flow.StepUser(c.UserContext(), in)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		switch res.Type {
		case configflow.ResultCreateEntry:
			ctx, cancel := context.WithTimeout(context.Background(), d.SetupTimeout)
			defer cancel()
			if _, err := d.Poller.SetupEntry(ctx, *res.Entry); err != nil {
				log.Error().Err(err).Str("host", res.Entry.Host).Msg("setup of new entry failed")
			}
			return c.Redirect("/admin")
		case configflow.ResultAbort:
			c.Status(fiber.StatusConflict)
		default:
			c.Status(fiber.StatusUnprocessableEntity)
		}
		return renderAdmin(c, res)
	})

	// Delete an entry
	app.Post("/admin/delete/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.ErrBadRequest
		}
		d.Poller.UnloadEntry(uint(id))
		if err := db.DeleteDevice(d.DB, uint(id)); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Redirect("/admin")
	})

	// Reload an entry to pick up nodes that joined since setup
	app.Post("/admin/reload/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.ErrBadRequest
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.SetupTimeout)
		defer cancel()
		if _, err := d.Poller.ReloadEntry(ctx, uint(id)); err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.Redirect("/admin")
	})

	app.Get("/api/devices", func(c *fiber.Ctx) error {
		views := deviceViews()
		if views == nil {
			views = []DeviceView{}
		}
		return c.JSON(views)
	})

	app.Get("/api/devices/:id/sensors", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.ErrBadRequest
		}
		rt, ok := d.Poller.Runtime(uint(id))
		if !ok {
			return fiber.ErrNotFound
		}
		return c.JSON(rt.States())
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "OK",
			"timestamp": time.Now(),
			"devices":   len(d.Poller.Runtimes()),
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
}
