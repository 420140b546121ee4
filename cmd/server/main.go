package main

import (
	goflag "flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"k8s.io/klog/v2"

	"github.com/Brownie44l1/resnet-classifier/internal/config"
	"github.com/Brownie44l1/resnet-classifier/internal/handlers"
	"github.com/Brownie44l1/resnet-classifier/internal/model"
)

func main() {
	klog.InitFlags(nil)
	goflag.Parse()
	defer klog.Flush()

	cfg, err := config.LoadInference()
	if err != nil {
		klog.Fatalf("Failed to load configuration: %v", err)
	}

	device, err := model.ParseDevice(cfg.DeviceTarget)
	if err != nil {
		klog.Fatalf("Invalid %s: %v", config.EnvDeviceTarget, err)
	}
	loader := model.ONNXLoader{Device: device, LibraryPath: cfg.ORTLibraryPath}

	klog.Infof("Loading model from: %s", cfg.ModelPath)

	var classifier *model.Classifier
	if cfg.MetadataPath != "" {
		classifier, err = model.OpenWithMetadata(cfg.ModelPath, cfg.MetadataPath, loader)
	} else {
		classifier, err = model.Open(cfg.ModelPath, loader)
	}
	if err != nil {
		klog.Fatalf("Failed to initialize model: %v", err)
	}
	defer classifier.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	handler := handlers.NewHandler(classifier, handlers.NewMetrics(reg))
	router := handlers.NewRouter(handler, reg)

	klog.Infof("Server starting on port %s", cfg.Port)
	klog.Infof("Classes: %v", classifier.Labels())
	klog.Info("Endpoints:")
	klog.Info("  GET  /health        - Health check")
	klog.Info("  POST /predict       - Raw CHW array prediction")
	klog.Info("  POST /predict/image - Predict from image upload")
	klog.Info("  GET  /metrics       - Prometheus metrics")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		klog.Fatalf("Server failed: %v", err)
	}
}
