// Package discovery locates sibling catalog peers to sync with, grounded on
// internal/k8s/k8s.go's client-construction pattern.
package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// K8sPeers resolves the pod addresses backing a named Service, for dialing
// sibling replicas' sync endpoints.
type K8sPeers struct {
	clientset *kubernetes.Clientset
}

func kubeconfigDefault() string {
	if v := os.Getenv("KUBECONFIG"); v != "" {
		return v
	}
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".kube", "config")
	}
	return ""
}

// NewK8sPeers builds a client from the in-cluster config, falling back to a
// kubeconfig on disk, per internal/k8s/k8s.go's New.
func NewK8sPeers() (*K8sPeers, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kc := kubeconfigDefault()
		if kc == "" {
			return nil, fmt.Errorf("discovery: no in-cluster config and no kubeconfig")
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kc)
		if err != nil {
			return nil, fmt.Errorf("discovery: %w", err)
		}
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	return &K8sPeers{clientset: cs}, nil
}

// PeerEndpoint is one sibling replica's dialable address for a named
// container port.
type PeerEndpoint struct {
	PodName string
	IP      string
	Port    int32
}

// ListPeers returns the ready endpoints behind namespace/service, excluding
// the caller's own pod (selfPodIP), for the Endpoints subset named
// portName (falling back to the first subset port when portName is empty).
func (k *K8sPeers) ListPeers(ctx context.Context, namespace, service, portName, selfPodIP string) ([]PeerEndpoint, error) {
	ep, err := k.clientset.CoreV1().Endpoints(namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("discovery: get endpoints %s/%s: %w", namespace, service, err)
	}

	var peers []PeerEndpoint
	for _, subset := range ep.Subsets {
		port := choosePort(subset.Ports, portName)
		if port == 0 {
			continue
		}
		for _, addr := range subset.Addresses {
			if addr.IP == selfPodIP {
				continue
			}
			name := addr.IP
			if addr.TargetRef != nil {
				name = addr.TargetRef.Name
			}
			peers = append(peers, PeerEndpoint{PodName: name, IP: addr.IP, Port: port})
		}
	}
	return peers, nil
}

func choosePort(ports []corev1.EndpointPort, name string) int32 {
	if len(ports) == 0 {
		return 0
	}
	if name == "" {
		return ports[0].Port
	}
	for _, p := range ports {
		if p.Name == name {
			return p.Port
		}
	}
	return 0
}
