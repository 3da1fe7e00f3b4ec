package chi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (POST /events/product-saved)
	ProductSaved(w http.ResponseWriter, r *http.Request)
	// (POST /events/product-deleted)
	ProductDeleted(w http.ResponseWriter, r *http.Request)
	// (GET /search)
	SearchProducts(w http.ResponseWriter, r *http.Request, params SearchProductsParams)
	// (POST /reindex)
	StartReindex(w http.ResponseWriter, r *http.Request)
	// (GET /reindex/{job})
	GetReindex(w http.ResponseWriter, r *http.Request, job JobID)
	// (DELETE /reindex/{job})
	CancelReindex(w http.ResponseWriter, r *http.Request, job JobID)
	// (POST /extract)
	ExtractDocument(w http.ResponseWriter, r *http.Request)
	// (GET /health)
	HealthCheck(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	Metrics(w http.ResponseWriter, r *http.Request)
}

// JobID is the path parameter of reindex job routes.
type JobID = string

// SearchProductsParams defines parameters for SearchProducts.
type SearchProductsParams struct {
	Q    *string `form:"q,omitempty" json:"q,omitempty"`
	TopK *int    `form:"top_k,omitempty" json:"top_k,omitempty"`
}

// ChiServerOptions configures the generated-style router.
type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// MiddlewareFunc wraps a single route handler.
type MiddlewareFunc func(http.Handler) http.Handler

// InvalidParamFormatError is reported when a parameter fails to bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// HandlerWithOptions creates http.Handler with additional options.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := serverInterfaceWrapper{
		handler:            si,
		handlerMiddlewares: options.Middlewares,
		errorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Post(options.BaseURL+"/events/product-saved", wrapper.ProductSaved)
		r.Post(options.BaseURL+"/events/product-deleted", wrapper.ProductDeleted)
		r.Get(options.BaseURL+"/search", wrapper.SearchProducts)
		r.Post(options.BaseURL+"/reindex", wrapper.StartReindex)
		r.Get(options.BaseURL+"/reindex/{job}", wrapper.GetReindex)
		r.Delete(options.BaseURL+"/reindex/{job}", wrapper.CancelReindex)
		r.Post(options.BaseURL+"/extract", wrapper.ExtractDocument)
		r.Get(options.BaseURL+"/health", wrapper.HealthCheck)
		r.Get(options.BaseURL+"/metrics", wrapper.Metrics)
	})
	return r
}

type serverInterfaceWrapper struct {
	handler            ServerInterface
	handlerMiddlewares []MiddlewareFunc
	errorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *serverInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.Handler) {
	for _, middleware := range siw.handlerMiddlewares {
		h = middleware(h)
	}
	h.ServeHTTP(w, r)
}

func (siw *serverInterfaceWrapper) ProductSaved(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.ProductSaved))
}

func (siw *serverInterfaceWrapper) ProductDeleted(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.ProductDeleted))
}

func (siw *serverInterfaceWrapper) SearchProducts(w http.ResponseWriter, r *http.Request) {
	var params SearchProductsParams

	err := runtime.BindQueryParameter("form", true, false, "q", r.URL.Query(), &params.Q)
	if err != nil {
		siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "q", Err: err})
		return
	}
	err = runtime.BindQueryParameter("form", true, false, "top_k", r.URL.Query(), &params.TopK)
	if err != nil {
		siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "top_k", Err: err})
		return
	}

	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.handler.SearchProducts(w, r, params)
	}))
}

func (siw *serverInterfaceWrapper) StartReindex(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.StartReindex))
}

func (siw *serverInterfaceWrapper) bindJob(w http.ResponseWriter, r *http.Request) (JobID, bool) {
	var job JobID
	err := runtime.BindStyledParameterWithOptions("simple", "job", chi.URLParam(r, "job"), &job,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "job", Err: err})
		return "", false
	}
	return job, true
}

func (siw *serverInterfaceWrapper) GetReindex(w http.ResponseWriter, r *http.Request) {
	job, ok := siw.bindJob(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.handler.GetReindex(w, r, job)
	}))
}

func (siw *serverInterfaceWrapper) CancelReindex(w http.ResponseWriter, r *http.Request) {
	job, ok := siw.bindJob(w, r)
	if !ok {
		return
	}
	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.handler.CancelReindex(w, r, job)
	}))
}

func (siw *serverInterfaceWrapper) ExtractDocument(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.ExtractDocument))
}

func (siw *serverInterfaceWrapper) HealthCheck(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.HealthCheck))
}

func (siw *serverInterfaceWrapper) Metrics(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.handler.Metrics))
}
