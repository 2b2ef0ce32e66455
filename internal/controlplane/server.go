package controlplane

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/fleetsim/internal/audit"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is bound to loopback by default; the TUI and browser
	// dashboards connect from other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server provides the HTTP API for fleetsim.
type Server struct {
	service  *Service
	addr     string
	echo     *echo.Echo
	hub      *Hub
	validate *validator.Validate
}

// NewServer creates a new HTTP server and registers its routes.
func NewServer(service *Service, addr string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/ws/events"
		},
	}))

	s := &Server{
		service:  service,
		addr:     addr,
		echo:     e,
		hub:      NewHub(service.Engine().Bus()),
		validate: validator.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/health", s.handleHealth)

	robots := e.Group("/robots")
	robots.GET("", s.listRobots)
	robots.GET("/:id", s.getRobot)
	robots.PUT("/:id/status", s.setRobotStatus)
	robots.POST("/:id/fault", s.injectFault)
	robots.POST("/:id/recover", s.recoverRobot)

	tasks := e.Group("/tasks")
	tasks.GET("", s.listTasks)
	tasks.POST("", s.createTask)
	tasks.GET("/:id", s.getTask)
	tasks.POST("/:id/assign", s.assignTask)
	tasks.POST("/:id/cancel", s.cancelTask)

	alerts := e.Group("/alerts")
	alerts.GET("", s.listAlerts)
	alerts.POST("/:id/ack", s.ackAlert)
	alerts.POST("/:id/resolve", s.resolveAlert)

	e.GET("/maps", s.listMaps)
	e.GET("/maps/:floor", s.getMap)

	simulation := e.Group("/simulation")
	simulation.GET("", s.simulationStatus)
	simulation.POST("/start", s.startSimulation)
	simulation.POST("/stop", s.stopSimulation)
	simulation.PUT("/speed", s.setSpeed)

	e.GET("/audit", s.listAudit)
	e.GET("/ws/events", s.streamEvents)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Hub returns the event stream hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("[api] listening on %s", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and disconnects stream clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.echo.Shutdown(ctx)
}

// bind decodes and validates a request body. The returned error renders as
// {"message": ...} through echo's error handler.
func (s *Server) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Validation failed: "+err.Error())
	}
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	h := s.service.Health(c.Request().Context())
	if !h.OK {
		return c.JSON(http.StatusServiceUnavailable, h)
	}
	return c.JSON(http.StatusOK, h)
}

// --- Robots ---

func (s *Server) listRobots(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Engine().Store().Robots())
}

func (s *Server) getRobot(c echo.Context) error {
	r, err := s.service.Engine().Store().Robot(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) setRobotStatus(c echo.Context) error {
	var req models.RobotStatusRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	r, err := s.service.Engine().SetRobotStatus(c.Param("id"), req.Status)
	s.record("robot.status", c.Param("id"), req, "", err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) injectFault(c echo.Context) error {
	var req models.FaultRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	a, err := s.service.Engine().InjectFault(c.Param("id"), req.FaultType)
	s.record("robot.fault", c.Param("id"), req, "", err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// RecoveryResponse is the body of POST /robots/:id/recover.
type RecoveryResponse struct {
	RobotID   string `json:"robot_id"`
	Pending   bool   `json:"pending,omitempty"`
	Recovered bool   `json:"recovered"`
}

func (s *Server) recoverRobot(c echo.Context) error {
	id := c.Param("id")
	engine := s.service.Engine()

	if async, _ := strconv.ParseBool(c.QueryParam("async")); async {
		if _, err := engine.Store().Robot(id); err != nil {
			s.record("robot.recover", id, nil, "", err)
			return fail(c, err)
		}
		s.record("robot.recover", id, nil, "pending", nil)
		go func() {
			if _, err := engine.AttemptRecovery(context.Background(), id); err != nil {
				log.Printf("[api] recovery of %s: %v", id, err)
			}
		}()
		return c.JSON(http.StatusAccepted, RecoveryResponse{RobotID: id, Pending: true})
	}

	ok, err := engine.AttemptRecovery(c.Request().Context(), id)
	s.record("robot.recover", id, nil, "recovered="+strconv.FormatBool(ok), err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, RecoveryResponse{RobotID: id, Recovered: ok})
}

// --- Tasks ---

func (s *Server) listTasks(c echo.Context) error {
	status := models.TaskStatus(c.QueryParam("status"))
	return c.JSON(http.StatusOK, s.service.Engine().Store().Tasks(status))
}

func (s *Server) createTask(c echo.Context) error {
	var req models.CreateTaskRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	t, err := s.service.Engine().CreateTask(req)
	s.record("task.create", t.ID, req, "", err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) getTask(c echo.Context) error {
	t, err := s.service.Engine().Store().Task(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) assignTask(c echo.Context) error {
	var req models.AssignTaskRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	t, err := s.service.Engine().AssignTask(c.Param("id"), req.RobotID)
	s.record("task.assign", c.Param("id"), req, "", err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) cancelTask(c echo.Context) error {
	t, err := s.service.Engine().CancelTask(c.Param("id"))
	s.record("task.cancel", c.Param("id"), nil, "", err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// --- Alerts ---

func (s *Server) listAlerts(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Engine().Store().Alerts())
}

func (s *Server) ackAlert(c echo.Context) error {
	a, err := s.service.Engine().AcknowledgeAlert(c.Param("id"))
	s.record("alert.ack", c.Param("id"), nil, "", err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) resolveAlert(c echo.Context) error {
	a, err := s.service.Engine().ResolveAlert(c.Param("id"))
	s.record("alert.resolve", c.Param("id"), nil, "", err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// --- Facility ---

func (s *Server) listMaps(c echo.Context) error {
	maps := s.service.Engine().Store().FloorMaps()
	if maps == nil {
		maps = []models.FloorMap{}
	}
	return c.JSON(http.StatusOK, maps)
}

func (s *Server) getMap(c echo.Context) error {
	floor, err := strconv.Atoi(c.Param("floor"))
	if err != nil {
		return badRequest(c, "floor must be an integer")
	}
	fm, err := s.service.Engine().Store().FloorMap(floor)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, fm)
}

// --- Simulation ---

func (s *Server) simulationStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Engine().Stats())
}

func (s *Server) startSimulation(c echo.Context) error {
	err := s.service.Engine().Start()
	s.record("sim.start", "", nil, "", err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, s.service.Engine().Stats())
}

func (s *Server) stopSimulation(c echo.Context) error {
	s.service.Engine().Stop()
	s.record("sim.stop", "", nil, "", nil)
	return c.JSON(http.StatusOK, s.service.Engine().Stats())
}

func (s *Server) setSpeed(c echo.Context) error {
	var req models.SpeedRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	err := s.service.Engine().SetSpeed(req.Multiplier)
	s.record("sim.speed", "", req, "", err)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, s.service.Engine().Stats())
}

// --- Audit ---

func (s *Server) record(action, target string, inputs interface{}, details string, err error) {
	s.service.Audit().Record(action, target, inputs, details, err)
}

func (s *Server) listAudit(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = n
	}

	f := audit.Filter{
		Action: c.QueryParam("action"),
		Target: c.QueryParam("target"),
	}
	for name, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, name+" must be an RFC 3339 timestamp")
		}
		*dst = at
	}
	return c.JSON(http.StatusOK, s.service.Audit().List(f, limit))
}

func (s *Server) streamEvents(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("[api] websocket upgrade: %v", err)
		return nil
	}
	s.hub.Serve(conn)
	return nil
}
