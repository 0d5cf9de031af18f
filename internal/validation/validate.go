// Package validation checks an App spec and normalizes it into a manifest.AppSpec.
//
// Validate never stops at the first problem: every violated field is reported
// in a single *Error so one status update can show them all.
package validation

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	k8svalidation "k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/lexfrei/webapp-operator/api/v1alpha1"
	"github.com/lexfrei/webapp-operator/internal/manifest"
)

const (
	minPort              = 1
	maxPort              = 65535
	maxTargetUtilization = 100
)

// Error lists every violated field of an App spec.
type Error struct {
	Errs field.ErrorList
}

func (e *Error) Error() string {
	return e.Errs.ToAggregate().Error()
}

// Fields returns the paths of all violated fields, in detection order.
func (e *Error) Fields() []string {
	fields := make([]string, 0, len(e.Errs))
	for _, fieldErr := range e.Errs {
		fields = append(fields, fieldErr.Field)
	}

	return fields
}

// Messages returns one human readable line per violation.
func (e *Error) Messages() []string {
	messages := make([]string, 0, len(e.Errs))
	for _, fieldErr := range e.Errs {
		messages = append(messages, fieldErr.Error())
	}

	return messages
}

// AsError extracts a validation *Error from err.
func AsError(err error) (*Error, bool) {
	var validationErr *Error
	if errors.As(err, &validationErr) {
		return validationErr, true
	}

	return nil, false
}

// Validate checks app and returns its normalized spec.
// On failure the error is a *Error enumerating every violation.
func Validate(app *v1alpha1.App) (*manifest.AppSpec, error) {
	spec := &manifest.AppSpec{
		Parent: manifest.Parent{
			Namespace:  app.Namespace,
			Name:       app.Name,
			UID:        app.UID,
			Generation: app.Generation,
		},
		Image:                strings.TrimSpace(app.Spec.Deployment.Image),
		Port:                 app.Spec.Deployment.Port,
		MinReplicas:          app.Spec.Autoscale.GetMinReplicas(),
		MaxReplicas:          app.Spec.Autoscale.GetMaxReplicas(),
		TargetCPUUtilization: app.Spec.Autoscale.TargetCPUUtilizationPercentage,
		IngressClassName:     strings.TrimSpace(app.Spec.Ingress.IngressClassName),
		Host:                 strings.ToLower(strings.TrimSpace(app.Spec.Ingress.Host)),
	}

	var allErrs field.ErrorList

	allErrs = append(allErrs, validateName(app.Name)...)
	allErrs = append(allErrs, validateDeployment(spec, app.Spec.Deployment)...)
	allErrs = append(allErrs, validateAutoscale(spec)...)
	allErrs = append(allErrs, validateIngress(spec)...)

	env, envErrs := validateEnv(app.Spec.Env)
	allErrs = append(allErrs, envErrs...)
	spec.Env = env

	if len(allErrs) > 0 {
		return nil, &Error{Errs: allErrs}
	}

	return spec, nil
}

func validateName(name string) field.ErrorList {
	path := field.NewPath("metadata", "name")

	var allErrs field.ErrorList

	for _, msg := range k8svalidation.IsValidLabelValue(name) {
		allErrs = append(allErrs, field.Invalid(path, name, msg))
	}

	for _, kind := range manifest.AllKinds() {
		child := manifest.ChildName(name, kind)

		var msgs []string
		if kind == manifest.KindService {
			msgs = k8svalidation.IsDNS1035Label(child)
		} else {
			msgs = k8svalidation.IsDNS1123Subdomain(child)
		}

		for _, msg := range msgs {
			allErrs = append(allErrs, field.Invalid(path, name, fmt.Sprintf("%s name %q: %s", kind, child, msg)))
		}
	}

	return allErrs
}

func validateDeployment(spec *manifest.AppSpec, cfg v1alpha1.DeploymentConfig) field.ErrorList {
	path := field.NewPath("deployment")

	var allErrs field.ErrorList

	if spec.Image == "" {
		allErrs = append(allErrs, field.Required(path.Child("image"), "image must not be empty"))
	}

	if spec.Port < minPort || spec.Port > maxPort {
		allErrs = append(allErrs, field.Invalid(path.Child("port"), spec.Port,
			fmt.Sprintf("must be between %d and %d", minPort, maxPort)))
	}

	resources, resourceErrs := validateResources(path.Child("resources"), cfg.Resources)
	allErrs = append(allErrs, resourceErrs...)
	spec.Resources = resources

	return allErrs
}

func validateResources(
	path *field.Path,
	cfg v1alpha1.ResourceConfig,
) (corev1.ResourceRequirements, field.ErrorList) {
	var allErrs field.ErrorList

	requests, requestErrs := parseResourceList(path.Child("requests"), cfg.Requests)
	allErrs = append(allErrs, requestErrs...)

	limits, limitErrs := parseResourceList(path.Child("limits"), cfg.Limits)
	allErrs = append(allErrs, limitErrs...)

	for _, name := range []corev1.ResourceName{corev1.ResourceCPU, corev1.ResourceMemory} {
		request, hasRequest := requests[name]
		limit, hasLimit := limits[name]

		if hasRequest && hasLimit && request.Cmp(limit) > 0 {
			allErrs = append(allErrs, field.Invalid(path.Child("requests", string(name)), request.String(),
				fmt.Sprintf("must be less than or equal to %s limit %s", name, limit.String())))
		}
	}

	return corev1.ResourceRequirements{Requests: requests, Limits: limits}, allErrs
}

func parseResourceList(path *field.Path, list v1alpha1.ResourceList) (corev1.ResourceList, field.ErrorList) {
	if list.IsEmpty() {
		return nil, nil
	}

	var allErrs field.ErrorList

	parsed := corev1.ResourceList{}

	raw := []struct {
		name  corev1.ResourceName
		value string
	}{
		{name: corev1.ResourceCPU, value: list.CPU},
		{name: corev1.ResourceMemory, value: list.Memory},
	}

	for _, entry := range raw {
		if entry.value == "" {
			continue
		}

		quantity, err := resource.ParseQuantity(entry.value)
		if err != nil {
			allErrs = append(allErrs, field.Invalid(path.Child(string(entry.name)), entry.value, err.Error()))

			continue
		}

		if quantity.Sign() < 0 {
			allErrs = append(allErrs, field.Invalid(path.Child(string(entry.name)), entry.value,
				"must not be negative"))

			continue
		}

		parsed[entry.name] = quantity
	}

	if len(parsed) == 0 {
		parsed = nil
	}

	return parsed, allErrs
}

func validateAutoscale(spec *manifest.AppSpec) field.ErrorList {
	path := field.NewPath("autoscale")

	var allErrs field.ErrorList

	if spec.MinReplicas < 1 {
		allErrs = append(allErrs, field.Invalid(path.Child("min"), spec.MinReplicas, "must be at least 1"))
	}

	if spec.MaxReplicas < spec.MinReplicas {
		allErrs = append(allErrs, field.Invalid(path.Child("max"), spec.MaxReplicas,
			fmt.Sprintf("max<min (min is %d)", spec.MinReplicas)))
	}

	if spec.TargetCPUUtilization <= 0 || spec.TargetCPUUtilization > maxTargetUtilization {
		allErrs = append(allErrs, field.Invalid(path.Child("targetCPUUtilizationPercentage"),
			spec.TargetCPUUtilization, "must be greater than 0 and at most 100"))
	}

	return allErrs
}

func validateIngress(spec *manifest.AppSpec) field.ErrorList {
	path := field.NewPath("ingress")

	var allErrs field.ErrorList

	switch {
	case spec.Host == "":
		allErrs = append(allErrs, field.Required(path.Child("host"), "host must not be empty"))
	case strings.HasPrefix(spec.Host, "*."):
		for _, msg := range k8svalidation.IsWildcardDNS1123Subdomain(spec.Host) {
			allErrs = append(allErrs, field.Invalid(path.Child("host"), spec.Host, msg))
		}
	default:
		for _, msg := range k8svalidation.IsDNS1123Subdomain(spec.Host) {
			allErrs = append(allErrs, field.Invalid(path.Child("host"), spec.Host, msg))
		}
	}

	if spec.IngressClassName != "" {
		for _, msg := range k8svalidation.IsDNS1123Subdomain(spec.IngressClassName) {
			allErrs = append(allErrs, field.Invalid(path.Child("ingressClassName"), spec.IngressClassName, msg))
		}
	}

	return allErrs
}

func validateEnv(vars []v1alpha1.EnvVar) ([]corev1.EnvVar, field.ErrorList) {
	if len(vars) == 0 {
		return nil, nil
	}

	path := field.NewPath("env")

	var allErrs field.ErrorList

	env := make([]corev1.EnvVar, 0, len(vars))
	defined := make(map[string]bool, len(vars))

	for idx, envVar := range vars {
		itemPath := path.Index(idx)

		switch {
		case envVar.Name == "":
			allErrs = append(allErrs, field.Required(itemPath.Child("name"), "name must not be empty"))
		case defined[envVar.Name]:
			allErrs = append(allErrs, field.Duplicate(itemPath.Child("name"), envVar.Name))
		default:
			for _, msg := range k8svalidation.IsEnvVarName(envVar.Name) {
				allErrs = append(allErrs, field.Invalid(itemPath.Child("name"), envVar.Name, msg))
			}
		}

		for _, ref := range unresolvedReferences(envVar.Value, defined) {
			allErrs = append(allErrs, field.Invalid(itemPath.Child("value"), envVar.Value,
				fmt.Sprintf("unresolved variable reference $(%s)", ref)))
		}

		if envVar.Name != "" {
			defined[envVar.Name] = true
		}

		env = append(env, corev1.EnvVar{Name: envVar.Name, Value: envVar.Value})
	}

	return env, allErrs
}
