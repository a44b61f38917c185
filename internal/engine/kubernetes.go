package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Kubernetes implements the Engine interface against pod container statuses.
// Container IDs take the form "<pod>/<container>"; a bare pod name selects the
// pod's first container. A readiness probe stands in for the health probe.
type Kubernetes struct {
	clientset kubernetes.Interface
	namespace string
}

// homeDir returns the user's home directory.
func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE") // Windows
}

// NewKubernetes creates a new Kubernetes-based inspector.
// Tries in-cluster configuration first, falls back to kubeconfig for local development.
func NewKubernetes(namespace string) (*Kubernetes, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := filepath.Join(homeDir(), ".kube", "config")
		slog.Debug("in-cluster config not available, trying kubeconfig", "kubeconfig", kubeconfig, "error", err)
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	return NewKubernetesWithClientset(clientset, namespace), nil
}

// NewKubernetesWithClientset wraps an existing clientset.
func NewKubernetesWithClientset(clientset kubernetes.Interface, namespace string) *Kubernetes {
	if namespace == "" {
		namespace = "default"
	}
	return &Kubernetes{clientset: clientset, namespace: namespace}
}

// Inspect implements Inspector.Inspect by reading the pod status.
func (k *Kubernetes) Inspect(ctx context.Context, containerID string, query Query) ([]string, error) {
	podName, containerName, _ := strings.Cut(containerID, "/")

	pod, err := k.clientset.CoreV1().Pods(k.namespace).Get(ctx, podName, metav1.GetOptions{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, queryError(containerID, query, ctx.Err())
		}
		return nil, queryError(containerID, query, err)
	}

	spec, status, err := findContainer(pod, containerName)
	if err != nil {
		return nil, queryError(containerID, query, err)
	}

	switch query {
	case HealthStatusQuery:
		if spec.ReadinessProbe == nil {
			return []string{""}, nil
		}
		if status != nil && status.Ready {
			return []string{"healthy"}, nil
		}
		return []string{"unhealthy"}, nil

	case ExitCodeQuery:
		if status == nil {
			return []string{""}, nil
		}
		switch {
		case status.State.Terminated != nil:
			return []string{strconv.Itoa(int(status.State.Terminated.ExitCode))}, nil
		case status.State.Running != nil:
			// Matches the docker engine, which reports 0 for running containers.
			return []string{"0"}, nil
		default:
			return []string{""}, nil
		}

	default:
		return nil, queryError(containerID, query, fmt.Errorf("unsupported query %q", string(query)))
	}
}

// findContainer returns the spec and status of the named container.
// The status is nil when the kubelet has not reported it yet.
func findContainer(pod *corev1.Pod, name string) (*corev1.Container, *corev1.ContainerStatus, error) {
	if len(pod.Spec.Containers) == 0 {
		return nil, nil, fmt.Errorf("pod %s has no containers", pod.Name)
	}
	if name == "" {
		name = pod.Spec.Containers[0].Name
	}

	var spec *corev1.Container
	for i := range pod.Spec.Containers {
		if pod.Spec.Containers[i].Name == name {
			spec = &pod.Spec.Containers[i]
			break
		}
	}
	if spec == nil {
		return nil, nil, fmt.Errorf("container %q not found in pod %s", name, pod.Name)
	}

	for i := range pod.Status.ContainerStatuses {
		if pod.Status.ContainerStatuses[i].Name == name {
			return spec, &pod.Status.ContainerStatuses[i], nil
		}
	}
	return spec, nil, nil
}

// Remove deletes the pod that hosts the container.
func (k *Kubernetes) Remove(ctx context.Context, containerID string) error {
	podName, _, _ := strings.Cut(containerID, "/")

	grace := int64(0)
	err := k.clientset.CoreV1().Pods(k.namespace).Delete(ctx, podName, metav1.DeleteOptions{
		GracePeriodSeconds: &grace,
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("pod %s: %w", podName, errdefs.ErrNotFound)
		}
		return fmt.Errorf("failed to delete pod %s: %w", podName, err)
	}
	return nil
}
