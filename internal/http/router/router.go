package router

import (
	"net/http"
	"time"

	"blogapp/internal/accounts"
	"blogapp/internal/blogs"
	"blogapp/internal/http/handlers"
	"blogapp/internal/images"
	"blogapp/internal/logging"
	"blogapp/internal/sessions"

	"github.com/gorilla/mux"
)

// Deps bundles everything the route table needs.
type Deps struct {
	Accounts *accounts.Store
	Sessions *sessions.Manager
	Blogs    *blogs.Store
	Images   *images.Store
	Lifetime time.Duration
	ImageDir string
	Log      logging.Logger
}

func Setup(d Deps) *mux.Router {
	r := mux.NewRouter()

	authHandler := handlers.NewAuthHandler(d.Accounts, d.Sessions, d.Lifetime, d.Log)
	profileHandler := handlers.NewProfileHandler(d.Accounts, d.Sessions, d.Images, d.Lifetime, d.Log)
	blogHandler := handlers.NewBlogHandler(d.Blogs, d.Sessions, d.Log)

	r.HandleFunc("/api/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/api/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/logout", authHandler.Logout).Methods("POST")

	r.HandleFunc("/api/profile", profileHandler.View).Methods("GET")
	r.HandleFunc("/api/profile", profileHandler.Update).Methods("PUT")
	r.HandleFunc("/api/profile/image", profileHandler.UploadImage).Methods("POST")

	r.HandleFunc("/api/blogs", blogHandler.Create).Methods("POST")
	r.HandleFunc("/api/blogs/search", blogHandler.Search).Methods("GET")
	r.HandleFunc("/api/blogs/random", blogHandler.Random).Methods("GET")
	r.HandleFunc("/api/blogs/{author}/{title}", blogHandler.View).Methods("GET")
	r.HandleFunc("/api/blogs/{author}/{title}", blogHandler.Update).Methods("PUT")
	r.HandleFunc("/api/blogs/{author}/{title}", blogHandler.Delete).Methods("DELETE")

	r.PathPrefix("/img/profiles/").Handler(
		http.StripPrefix("/img/profiles/", http.FileServer(http.Dir(d.ImageDir))))

	return r
}
