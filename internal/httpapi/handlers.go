package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/smartcabb-dispatch/internal/config"
	"github.com/example/smartcabb-dispatch/internal/dispatch"
	"github.com/example/smartcabb-dispatch/internal/eta"
	"github.com/example/smartcabb-dispatch/internal/geo"
	"github.com/example/smartcabb-dispatch/internal/matcher"
	"github.com/example/smartcabb-dispatch/internal/models"
	"github.com/example/smartcabb-dispatch/internal/observability"
	"github.com/example/smartcabb-dispatch/internal/store"
)

type Server struct {
	Engine *matcher.Engine
	Store  store.Store
	WSReg  *dispatch.WSRegistry

	ETAClient eta.Client // optional routed durations
	ETACache  *eta.Cache

	cfg    config.ServerConfig
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(cfg config.ServerConfig, st store.Store, engine *matcher.Engine, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{
		Engine:   engine,
		Store:    st,
		WSReg:    wsreg,
		ETACache: eta.NewCache(5 * time.Minute),
		cfg:      cfg,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	if cfg.OSRMEndpoint != "" {
		s.ETAClient = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides/request", s.handleRideRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/decline", s.handleDecline).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/notifications/{driver_id}", s.handleNotifications).Methods("GET")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverUpdate).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type rideRequestInput struct {
	PassengerID     string           `json:"passenger_id"`
	PassengerName   string           `json:"passenger_name"`
	PassengerPhone  string           `json:"passenger_phone"`
	PassengerRating float64          `json:"passenger_rating"`
	Pickup          models.Location  `json:"pickup"`
	Destination     *models.Location `json:"destination"`
	VehicleType     string           `json:"vehicle_type"`
}

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	var in rideRequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.PassengerID == "" || in.VehicleType == "" {
		http.Error(w, "passenger_id and vehicle_type are required", http.StatusBadRequest)
		return
	}
	if err := geo.Validate(in.Pickup); err != nil {
		http.Error(w, "invalid pickup coordinates", http.StatusBadRequest)
		return
	}
	if in.Destination != nil {
		if err := geo.Validate(*in.Destination); err != nil {
			http.Error(w, "invalid destination coordinates", http.StatusBadRequest)
			return
		}
	}

	ride := &models.RideRequest{
		ID:              uuid.NewString(),
		PassengerID:     in.PassengerID,
		PassengerName:   in.PassengerName,
		PassengerPhone:  in.PassengerPhone,
		PassengerRating: in.PassengerRating,
		Pickup:          in.Pickup,
		Destination:     in.Destination,
		VehicleType:     in.VehicleType,
		Status:          models.RidePending,
		RejectedBy:      []string{},
		CreatedAt:       time.Now(),
	}
	if in.Destination != nil {
		s.quote(ride)
	}
	if err := s.Store.PutRide(r.Context(), ride); err != nil {
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}

	assigned, err := s.Engine.FindAndAssignDriver(r.Context(), ride.ID)
	if err != nil {
		http.Error(w, "dispatch failed", http.StatusInternalServerError)
		return
	}
	status := models.RidePending
	if assigned {
		status = models.RideAssigned
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"ride_id":                    ride.ID,
		"status":                     status,
		"assigned":                   assigned,
		"estimated_price":            ride.EstimatedPrice,
		"estimated_distance_km":      ride.EstimatedKm,
		"estimated_duration_seconds": ride.EstimatedSec,
	})
}

// quote fills the distance/duration/fare estimates shown to the
// passenger before any driver is found.
func (s *Server) quote(ride *models.RideRequest) {
	dest := *ride.Destination
	ride.EstimatedKm = geo.DistanceKm(ride.Pickup, dest)

	var sec float64
	if s.ETACache != nil {
		if v, ok := s.ETACache.Get(ride.Pickup, dest); ok {
			sec = v
		}
	}
	if sec == 0 && s.ETAClient != nil {
		if v, err := s.ETAClient.EstimateSeconds(ride.Pickup, dest); err == nil {
			sec = v
			if s.ETACache != nil {
				s.ETACache.Set(ride.Pickup, dest, sec)
			}
		}
	}
	if sec == 0 {
		sec = eta.EstimateSeconds(ride.Pickup, dest, s.cfg.DefaultSpeedMps)
	}
	ride.EstimatedSec = sec
	ride.EstimatedPrice = eta.Fare(ride.EstimatedKm, s.cfg.FareBase, s.cfg.FarePerKm)
}

type decisionInput struct {
	RideID   string `json:"rideId"`
	DriverID string `json:"driverId"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.Engine.AcceptRide)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.Engine.DeclineRide)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, rideID, driverID string) (bool, error)) {
	var in decisionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.RideID == "" || in.DriverID == "" {
		http.Error(w, "rideId and driverId are required", http.StatusBadRequest)
		return
	}
	ok, err := op(r.Context(), in.RideID, in.DriverID)
	if err != nil {
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": ok})
}

type notificationView struct {
	models.Notification
	Ride *models.RideRequest `json:"ride,omitempty"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	ns, err := s.Store.ListDriverNotifications(r.Context(), driverID)
	if err != nil {
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	now := time.Now()
	out := make([]notificationView, 0, len(ns))
	for _, n := range ns {
		if n.Expired(now) {
			continue
		}
		v := notificationView{Notification: *n}
		if ride, err := s.Store.GetRide(r.Context(), n.RideID); err == nil {
			v.Ride = ride
		} else if !errors.Is(err, store.ErrNotFound) {
			http.Error(w, "store unavailable", http.StatusInternalServerError)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

func (s *Server) handleDriverUpdate(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if d.ID == "" || d.VehicleType == "" {
		http.Error(w, "id and vehicle_type are required", http.StatusBadRequest)
		return
	}
	if err := geo.Validate(d.Location); err != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}
	if d.Status == "" {
		d.Status = models.DriverAvailable
	}
	d.Updated = time.Now()
	if err := s.Store.PutDriver(r.Context(), &d); err != nil {
		http.Error(w, "store unavailable", http.StatusInternalServerError)
		return
	}
	observability.DriversOnline.Inc()
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.WSReg.Remove(id)
				_ = conn.Close()
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
